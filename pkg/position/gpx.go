package position

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"
)

// gpxFile is the subset of the GPX 1.1 schema the replayer cares about.
type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat       float64   `xml:"lat,attr"`
	Lon       float64   `xml:"lon,attr"`
	Elevation float64   `xml:"ele,omitempty"`
	Time      time.Time `xml:"time,omitempty"`
}

// parseGPX reads a track file and flattens all segments in order.
func parseGPX(r io.Reader) ([]gpxPoint, error) {
	var g gpxFile
	if err := xml.NewDecoder(r).Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var points []gpxPoint
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("GPX track has no points")
	}
	return points, nil
}

func parseGPXFile(path string) ([]gpxPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return parseGPX(f)
}
