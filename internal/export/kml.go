// Package export renders trigger positions as KML for sky viewers such as
// Google Earth in Sky mode.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"gcn_parser/internal/state"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Hint      string   `xml:"hint,attr,omitempty"` // "target=sky" switches viewers to celestial coordinates
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string    `xml:"id,attr"`
	IconStyle IconStyle `xml:"IconStyle"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// Placemark is one trigger position.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        Point         `xml:"Point"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point holds sky coordinates mapped to KML's lon,lat,alt.
type Point struct {
	Coordinates string `xml:"coordinates"`
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Style IDs. Triggers with an error radius of at most one degree are
// drawn as well localized.
const (
	styleLocalized = "localizedStyle"
	styleCoarse    = "coarseStyle"
	fineErrorDeg   = 1.0
)

// SkyCoordinates maps RA/Dec in degrees to a KML coordinate string. Sky
// mode viewers expect longitude = RA - 180.
func SkyCoordinates(ra, dec float64) string {
	return fmt.Sprintf("%.6f,%.6f,0", ra-180, dec)
}

// FormatRA renders right ascension as sexagesimal hours, e.g. 12h00m00.0s.
func FormatRA(ra float64) string {
	total := math.Round(math.Mod(ra, 360)/15*3600*10) / 10 // tenths of a second of time
	if total >= 24*3600 {
		total -= 24 * 3600
	}
	h := int(total / 3600)
	m := int((total - float64(h)*3600) / 60)
	s := total - float64(h)*3600 - float64(m)*60
	return fmt.Sprintf("%02dh%02dm%04.1fs", h, m, s)
}

// FormatDec renders declination as signed sexagesimal degrees, e.g. +45d00m00s.
func FormatDec(dec float64) string {
	sign := "+"
	if dec < 0 {
		sign = "-"
		dec = -dec
	}
	total := math.Round(dec * 3600)
	d := int(total / 3600)
	m := int((total - float64(d)*3600) / 60)
	s := int(total) - d*3600 - m*60
	return fmt.Sprintf("%s%02dd%02dm%02ds", sign, d, m, s)
}

// Generate creates a KML document from the triggers that have a position.
// Triggers without one are skipped.
func Generate(triggers []*state.TriggerState, generated time.Time) KML {
	placemarks := make([]Placemark, 0, len(triggers))
	for _, ts := range triggers {
		if !ts.HasPosition() {
			continue
		}
		placemarks = append(placemarks, placemark(ts))
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Hint:      "target=sky",
		Document: Document{
			Name:        "GCN Trigger Positions",
			Description: fmt.Sprintf("Best known positions of GCN triggers. Generated %s.", generated.UTC().Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{
					ID: styleLocalized,
					IconStyle: IconStyle{
						Scale: 1.0,
						Icon:  Icon{Href: "http://maps.google.com/mapfiles/kml/shapes/star.png"},
					},
				},
				{
					ID: styleCoarse,
					IconStyle: IconStyle{
						Scale: 0.7,
						Icon:  Icon{Href: "http://maps.google.com/mapfiles/kml/shapes/placemark_circle.png"},
					},
				},
			},
			Placemarks: placemarks,
		},
	}
}

func placemark(ts *state.TriggerState) Placemark {
	ra, dec := *ts.RA, *ts.Dec

	style := styleCoarse
	errStr := "unknown"
	if ts.ErrorDeg != nil {
		errStr = strconv.FormatFloat(*ts.ErrorDeg, 'f', -1, 64)
		if *ts.ErrorDeg <= fineErrorDeg {
			style = styleLocalized
		}
	}

	description := fmt.Sprintf(
		"RA %s Dec %s\nError: %s deg\nType: %s\nPackets: %d\nLast seen: %s",
		FormatRA(ra), FormatDec(dec), errStr, ts.LastType, ts.PacketCount,
		ts.LastSeen.UTC().Format("2006-01-02 15:04:05 UTC"),
	)

	data := []Data{
		{Name: "family", Value: ts.Family},
		{Name: "trig_num", Value: strconv.Itoa(int(ts.TrigNum))},
		{Name: "ra_deg", Value: strconv.FormatFloat(ra, 'f', -1, 64)},
		{Name: "dec_deg", Value: strconv.FormatFloat(dec, 'f', -1, 64)},
		{Name: "error_deg", Value: errStr},
		{Name: "last_type", Value: ts.LastType},
	}
	if ts.BurstTime != nil {
		data = append(data, Data{Name: "burst_time", Value: ts.BurstTime.UTC().Format(time.RFC3339Nano)})
	}

	return Placemark{
		Name:         fmt.Sprintf("%s %d", ts.Family, ts.TrigNum),
		Description:  description,
		StyleURL:     "#" + style,
		Point:        Point{Coordinates: SkyCoordinates(ra, dec)},
		ExtendedData: &ExtendedData{Data: data},
	}
}

// Write marshals the document with the XML header.
func Write(w io.Writer, doc KML) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("generating KML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(append(xmlData, '\n')); err != nil {
		return err
	}
	return nil
}
