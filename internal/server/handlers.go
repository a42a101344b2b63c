package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storewatch/storewatch/pkg/price"
	"github.com/storewatch/storewatch/pkg/storage"
)

type listingJSON struct {
	Title      string     `json:"title"`
	Price      *string    `json:"price"`
	PriceValue *uint64    `json:"price_value"`
	FirstSeen  *time.Time `json:"first_seen"`
}

func (s *Server) load(c *gin.Context) (storage.Database, bool) {
	db, err := s.Store.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return db, true
}

func (s *Server) handleStores(c *gin.Context) {
	db, ok := s.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, db.Stats())
}

// handleStore lists one store's listings, by title or, with ?sort=price,
// cheapest first with unpriced listings last.
func (s *Server) handleStore(c *gin.Context) {
	db, ok := s.load(c)
	if !ok {
		return
	}
	store := c.Param("store")
	snap, found := db[store]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown store " + store})
		return
	}

	listings := make([]listingJSON, 0, len(snap))
	for _, title := range snap.Titles() {
		rec := snap[title]
		l := listingJSON{Title: title}
		if rec.Price != "" {
			p := rec.Price
			l.Price = &p
			if v, ok := price.ParseValue(rec.Price); ok {
				l.PriceValue = &v
			}
		}
		if !rec.FirstSeen.IsZero() {
			fs := rec.FirstSeen.UTC()
			l.FirstSeen = &fs
		}
		listings = append(listings, l)
	}

	switch c.DefaultQuery("sort", "title") {
	case "title":
	case "price":
		sort.SliceStable(listings, func(i, j int) bool {
			a, b := listings[i].PriceValue, listings[j].PriceValue
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return *a < *b
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be title or price"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"store": store, "listings": listings})
}
