// Package export writes the snapshot out as flat tables.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/storewatch/storewatch/pkg/price"
	"github.com/storewatch/storewatch/pkg/storage"
)

var ErrUnknownFormat = errors.New("unknown export format")

const sheetName = "Snapshot"

var header = []string{"store", "title", "price", "price_value", "first_seen"}

// Row is one listing of the snapshot.
type Row struct {
	Store     string
	Title     string
	Price     string
	Value     uint64
	HasValue  bool
	FirstSeen time.Time
}

// Rows flattens db ordered by store, then title.
func Rows(db storage.Database) []Row {
	var rows []Row
	for _, store := range db.Stores() {
		snap := db[store]
		for _, title := range snap.Titles() {
			rec := snap[title]
			r := Row{Store: store, Title: title, Price: rec.Price, FirstSeen: rec.FirstSeen}
			r.Value, r.HasValue = price.ParseValue(rec.Price)
			rows = append(rows, r)
		}
	}
	return rows
}

// Write renders db in format ("csv" or "xlsx") to w.
func Write(w io.Writer, format string, db storage.Database) error {
	rows := Rows(db)
	switch strings.ToLower(format) {
	case "csv":
		return CSV(w, rows)
	case "xlsx":
		return XLSX(w, rows)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func CSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		value := ""
		if r.HasValue {
			value = strconv.FormatUint(r.Value, 10)
		}
		firstSeen := ""
		if !r.FirstSeen.IsZero() {
			firstSeen = r.FirstSeen.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{r.Store, r.Title, r.Price, value, firstSeen}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func XLSX(w io.Writer, rows []Row) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerCells); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		var value, firstSeen interface{}
		if r.HasValue {
			value = r.Value
		}
		if !r.FirstSeen.IsZero() {
			firstSeen = r.FirstSeen.UTC()
		}
		values := []interface{}{r.Store, r.Title, r.Price, value, firstSeen}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 60); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "E", 18); err != nil {
		return err
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.Write(w)
}
