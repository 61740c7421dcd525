// Package ingest loads the HDB carpark information CSV into the store.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/parkpulse/parkpulse/internal/model"
	"github.com/parkpulse/parkpulse/internal/store"
	"github.com/parkpulse/parkpulse/internal/svy21"
)

// Result summarizes one import run.
type Result struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Upserted  int    `json:"upserted"`
	Defaulted int    `json:"defaulted"`
}

// Options configures an import run.
type Options struct {
	Workers   int // conversion workers, default 4
	BatchSize int // rows per upsert, default 500
}

const (
	defaultWorkers   = 4
	defaultBatchSize = 500
)

// Required columns of the HDB carpark information dataset.
const (
	colCarparkNo    = "car_park_no"
	colAddress      = "address"
	colXCoord       = "x_coord"
	colYCoord       = "y_coord"
	colType         = "car_park_type"
	colSystem       = "type_of_parking_system"
	colShortTerm    = "short_term_parking"
	colFreeParking  = "free_parking"
	colNightParking = "night_parking"
	colDecks        = "car_park_decks"
	colGantryHeight = "gantry_height"
	colBasement     = "car_park_basement"
)

// ImportCarparks streams the CSV, converts SVY21 coordinates to WGS84, and
// upserts the rows in batches. Rows with unparseable coordinates are kept
// with a zero location and counted in Result.Defaulted.
func ImportCarparks(ctx context.Context, st store.Store, r io.Reader, opts Options) (*Result, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	log := zap.L().With(zap.String("component", "ingest"), zap.String("batch", batchID))

	rowCh := make(chan []string, 64)
	result := &Result{BatchID: batchID}

	var mu sync.Mutex
	var pending []model.Carpark

	flush := func(ctx context.Context) error {
		mu.Lock()
		batch := pending
		pending = nil
		mu.Unlock()
		if len(batch) == 0 {
			return nil
		}
		n, err := st.UpsertCarparks(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "ingest: upsert batch")
		}
		mu.Lock()
		result.Upserted += n
		mu.Unlock()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rowCh)
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return eris.Wrap(err, "ingest: read row")
			}
			select {
			case rowCh <- record:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			titler := cases.Title(language.English)
			for record := range rowCh {
				carpark, defaulted := convertRow(record, cols, titler, now)
				if carpark == nil {
					continue
				}

				mu.Lock()
				result.Total++
				if defaulted {
					result.Defaulted++
				}
				pending = append(pending, *carpark)
				full := len(pending) >= opts.BatchSize
				mu.Unlock()

				if full {
					if err := flush(gctx); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := flush(ctx); err != nil {
		return nil, err
	}

	log.Info("carpark import complete",
		zap.Int("total", result.Total),
		zap.Int("upserted", result.Upserted),
		zap.Int("defaulted", result.Defaulted),
	)
	return result, nil
}

// mapColumns resolves header names to indices. Column order in the
// published dataset has changed before, so positions are never assumed.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colCarparkNo, colAddress, colXCoord, colYCoord} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("ingest: missing column %q", required)
		}
	}
	return cols, nil
}

func convertRow(record []string, cols map[string]int, titler cases.Caser, now time.Time) (*model.Carpark, bool) {
	id := strings.TrimSpace(field(record, cols, colCarparkNo))
	if id == "" {
		return nil, false
	}

	carpark := &model.Carpark{
		ID:               id,
		Address:          titler.String(strings.ToLower(field(record, cols, colAddress))),
		CarparkType:      field(record, cols, colType),
		ParkingSystem:    field(record, cols, colSystem),
		ShortTermParking: field(record, cols, colShortTerm),
		FreeParking:      field(record, cols, colFreeParking),
		NightParking:     field(record, cols, colNightParking),
		Basement:         strings.EqualFold(field(record, cols, colBasement), "Y"),
		UpdatedAt:        now,
	}
	if decks, err := strconv.Atoi(field(record, cols, colDecks)); err == nil {
		carpark.Decks = decks
	}
	if h, err := strconv.ParseFloat(field(record, cols, colGantryHeight), 64); err == nil {
		carpark.GantryHeight = h
	}

	easting, errX := strconv.ParseFloat(field(record, cols, colXCoord), 64)
	northing, errY := strconv.ParseFloat(field(record, cols, colYCoord), 64)
	if errX != nil || errY != nil || (easting == 0 && northing == 0) {
		return carpark, true
	}

	carpark.Latitude, carpark.Longitude = svy21.ToLatLon(northing, easting)
	return carpark, false
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
