// Command reconstruct runs the track/vertex reconstruction pipeline
// over a CSV file of detector hits (one "t,x,y,z" row per hit), prints
// the fitted tracks and vertex, and optionally persists the results to
// a SQLite database.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/alig146/tracker/internal/config"
	"github.com/alig146/tracker/internal/geometry"
	"github.com/alig146/tracker/internal/tracker"
	"github.com/alig146/tracker/internal/tracker/trackdb"
)

var (
	input      = flag.String("input", "", "Path to CSV hit file (t,x,y,z per row)")
	tuningPath = flag.String("config", "", "Optional JSON tuning file")
	dbPath     = flag.String("db", "", "Optional SQLite results database")

	slabZ0        = flag.Float64("slab-z0", -5, "Bottom of the lowest detector slab (mm)")
	slabThickness = flag.Float64("slab-thickness", 10, "Detector slab thickness (mm)")
	slabHalfX     = flag.Float64("slab-half-x", 500, "Slab half-aperture in x (mm)")
	slabHalfY     = flag.Float64("slab-half-y", 500, "Slab half-aperture in y (mm)")
	timeRes       = flag.Float64("time-resolution", 1, "Slab timing resolution (ns)")
)

// readHits parses a CSV hit file. Rows must have at least four numeric
// columns (t, x, y, z); a single non-numeric header row is tolerated.
func readHits(path string) (tracker.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hit file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var event tracker.Event
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read hit file: %w", err)
		}
		line++
		if len(record) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 columns, got %d", line, len(record))
		}

		var values [4]float64
		ok := true
		for i := 0; i < 4; i++ {
			values[i], err = strconv.ParseFloat(record[i], 64)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: non-numeric hit data", line)
		}
		event = append(event, tracker.Point{T: values[0], X: values[1], Y: values[2], Z: values[3]})
	}
	return event, nil
}

func main() {
	flag.Parse()
	if *input == "" {
		log.Fatal("missing required -input flag")
	}

	cfg := tracker.DefaultConfig()
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		cfg = tuning.Merge(cfg)
	}

	geo := geometry.NewSlabGeometry(geometry.SlabConfig{
		Z0:             *slabZ0,
		Thickness:      *slabThickness,
		HalfX:          *slabHalfX,
		HalfY:          *slabHalfY,
		TimeResolution: *timeRes,
	})

	event, err := readHits(*input)
	if err != nil {
		log.Fatalf("failed to read hits: %v", err)
	}
	log.Printf("read %d hits from %s", len(event), *input)

	reconstructor := tracker.NewReconstructor(geo, cfg)
	tracks, vertex := reconstructor.Reconstruct(event)

	for i, track := range tracks {
		fmt.Printf("--- Track %d ---\n%s\n", i, track)
	}
	fmt.Println(vertex)

	if *dbPath != "" {
		db, err := trackdb.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open results database: %v", err)
		}
		defer db.Close()

		paramsJSON, err := json.Marshal(cfg)
		if err != nil {
			log.Fatalf("failed to encode run params: %v", err)
		}
		runID, err := db.CreateRun(*input, string(paramsJSON))
		if err != nil {
			log.Fatalf("failed to create run: %v", err)
		}
		for _, track := range tracks {
			if _, err := db.InsertTrack(runID, track); err != nil {
				log.Fatalf("failed to store track: %v", err)
			}
		}
		if vertex.Size() > 0 {
			if _, err := db.InsertVertex(runID, vertex); err != nil {
				log.Fatalf("failed to store vertex: %v", err)
			}
		}
		log.Printf("stored %d tracks under run %s in %s", len(tracks), runID, *dbPath)
	}
}
