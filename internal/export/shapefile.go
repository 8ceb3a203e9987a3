package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// DBF column order of the point layer.
const (
	fieldRegion = iota
	fieldTier
	fieldSector
	fieldDemand
	fieldScore
	fieldConsumer
)

var shapeFields = []shp.Field{
	shp.StringField("REGION", 2),
	shp.StringField("TIER", 3),
	shp.StringField("SECTOR", 40),
	shp.FloatField("DEMAND_KW", 16, 1),
	shp.FloatField("SCORE", 6, 1),
	shp.StringField("CONSUMER", 64),
}

// WriteShapefile writes recs as a point layer (x=longitude, y=latitude).
// path names the .shp; the .shx and .dbf siblings are created next to it.
// Unscored records carry SCORE -1.
func WriteShapefile(path string, recs []domain.DerivedRecord) error {
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		return errors.New("shapefile path must end in .shp")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create shapefile dir: %w", err)
		}
	}

	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	if err := writePoints(w, recs); err != nil {
		w.Close()
		return err
	}
	w.Close()

	// go-shp names the table <base>dbf; its reader expects <base>.dbf.
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return fmt.Errorf("place dbf: %w", err)
	}
	return nil
}

func writePoints(w *shp.Writer, recs []domain.DerivedRecord) error {
	if err := w.SetFields(shapeFields); err != nil {
		return fmt.Errorf("set dbf fields: %w", err)
	}
	for _, r := range recs {
		n := int(w.Write(&shp.Point{X: r.Longitude, Y: r.Latitude}))
		attrs := []struct {
			field int
			value any
		}{
			{fieldRegion, r.Region},
			{fieldTier, string(r.Tier)},
			{fieldSector, truncateField(r.Sector, 40)},
			{fieldDemand, r.DemandKW},
			{fieldScore, r.PriorityScore()},
			{fieldConsumer, truncateField(r.ConsumerID, 64)},
		}
		for _, a := range attrs {
			if err := w.WriteAttribute(n, a.field, a.value); err != nil {
				return fmt.Errorf("write attribute %d of row %d: %w", a.field, n, err)
			}
		}
	}
	return nil
}

// ReadShapefilePoints reads back the point geometries, mainly for checks.
func ReadShapefilePoints(path string) ([]shp.Point, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var pts []shp.Point
	for r.Next() {
		_, shape := r.Shape()
		if p, ok := shape.(*shp.Point); ok {
			pts = append(pts, *p)
		}
	}
	return pts, nil
}

// ReadShapefileAttributes returns the DBF rows in field order.
func ReadShapefileAttributes(path string) ([][]string, error) {
	if _, err := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".dbf"); err != nil {
		return nil, err
	}
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rows := make([][]string, 0, r.AttributeCount())
	for i := 0; i < r.AttributeCount(); i++ {
		row := make([]string, len(shapeFields))
		for f := range shapeFields {
			row[f] = strings.Trim(r.ReadAttribute(i, f), " \x00")
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DBF strings are byte-sized.
func truncateField(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
