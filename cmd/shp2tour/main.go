// Command shp2tour converts a point shapefile into a tour file skeleton.
// Point names come from a DBF attribute; audio references are filled with
// the conventional /audio/<point-id>.mp3 paths for the authoring side to
// record against.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/acurth/audioguia/pkg/model"
	"github.com/acurth/audioguia/pkg/tour"
)

func main() {
	inputPath := flag.String("input", "", "Path to input .shp file")
	outputPath := flag.String("output", "", "Path to output tour .json file")
	tourName := flag.String("name", "", "Tour name")
	tourID := flag.String("id", "", "Tour ID (defaults to the slug of the name)")
	nameField := flag.String("name-field", "name", "DBF attribute holding point names")
	radius := flag.Float64("radius", 0, "Trigger radius in meters for every point (0 leaves the engine default)")
	flag.Parse()

	if *inputPath == "" || *outputPath == "" || *tourName == "" {
		flag.Usage()
		log.Fatal("Input, output and name are required")
	}

	if err := run(*inputPath, *outputPath, *tourName, *tourID, *nameField, *radius); err != nil {
		log.Fatal(err)
	}
}

func run(inputPath, outputPath, tourName, tourID, nameField string, radius float64) error {
	shape, err := shp.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	// Locate the name attribute
	nameIdx := -1
	for i, f := range shape.Fields() {
		if strings.EqualFold(f.String(), nameField) {
			nameIdx = i
			break
		}
	}
	if nameIdx < 0 {
		log.Printf("Attribute %q not found, numbering points instead", nameField)
	}

	slug := slugify(tourName)
	if tourID == "" {
		tourID = slug
	}

	var points []model.Point
	seen := make(map[string]int)

	// iterate through all shapes
	for shape.Next() {
		n, p := shape.Shape()

		var lat, lng, alt float64

		switch s := p.(type) {
		case *shp.Point:
			lng, lat = s.X, s.Y
		case *shp.PointZ:
			lng, lat, alt = s.X, s.Y, s.Z
		case *shp.PointM:
			lng, lat = s.X, s.Y
		default:
			log.Printf("Skipping non-point shape: %T", p)
			continue
		}

		name := fmt.Sprintf("Point %d", n+1)
		if nameIdx >= 0 {
			if v := strings.TrimSpace(shape.ReadAttribute(n, nameIdx)); v != "" {
				name = v
			}
		}

		id := slugify(name)
		if id == "" {
			id = fmt.Sprintf("point-%d", n+1)
		}
		seen[id]++
		if c := seen[id]; c > 1 {
			id = fmt.Sprintf("%s-%d", id, c)
		}

		points = append(points, model.Point{
			ID:       id,
			Name:     name,
			Lat:      lat,
			Lng:      lng,
			Alt:      alt,
			Radius:   radius,
			AudioRef: fmt.Sprintf("/audio/%s.mp3", id),
		})
	}

	if err := shape.Err(); err != nil {
		return fmt.Errorf("error iterating shapes: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("no point features in %s", inputPath)
	}

	data, err := tour.MarshalTour(&model.Tour{
		ID:     tourID,
		Slug:   slug,
		Name:   tourName,
		Points: points,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal tour: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Successfully converted %d points to %s\n", len(points), outputPath)
	return nil
}

// slugify lowercases a name and collapses every non-alphanumeric run into a
// single hyphen.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
