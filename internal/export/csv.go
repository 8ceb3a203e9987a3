package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

var csvHeader = []string{
	"region", "tier", "sector", "demand_kw", "latitude", "longitude", "municipality_code",
	"activity_code", "street", "district", "postal_code", "consumer_id", "distributor",
}

var linkHeader = []string{"google_maps", "google_search", "whatsapp"}

// CSVHeader returns the exported columns; score is present only when scored.
func CSVHeader(scored bool) []string {
	h := append([]string(nil), csvHeader...)
	if scored {
		h = append(h, "score")
	}
	return append(h, linkHeader...)
}

// WriteCSV writes one UTF-8 row per record, in the given order.
func WriteCSV(w io.Writer, recs []domain.DerivedRecord, scored bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(scored)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range recs {
		if err := cw.Write(csvRow(r, scored)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r domain.DerivedRecord, scored bool) []string {
	mun := ""
	if r.MunicipalityCode != nil {
		mun = strconv.Itoa(*r.MunicipalityCode)
	}
	row := []string{
		r.Region,
		string(r.Tier),
		r.Sector,
		num(r.DemandKW),
		num(r.Latitude),
		num(r.Longitude),
		mun,
		r.ActivityCode,
		r.Street,
		r.District,
		r.PostalCode,
		r.ConsumerID,
		r.Distributor,
	}
	if scored {
		s := ""
		if r.Score != nil {
			s = strconv.FormatFloat(r.Score.Total, 'f', 1, 64)
		}
		row = append(row, s)
	}
	l := LinksFor(r)
	return append(row, l.GoogleMaps, l.GoogleSearch, l.WhatsApp)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
