package export

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/denisok6893-rgb/grupoa-prospecting/internal/domain"
)

// MapsLink points at the coordinates, or searches the address when the
// point is (0,0). Empty when neither is usable.
func MapsLink(lat, lon float64, address string) string {
	if lat != 0 || lon != 0 {
		return "https://www.google.com/maps?q=" + coord(lat) + "," + coord(lon)
	}
	a := strings.TrimSpace(address)
	if a == "" {
		return ""
	}
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(a)
}

func SearchLink(terms ...string) string {
	q := joinNonEmpty(" ", terms...)
	if q == "" {
		return ""
	}
	return "https://www.google.com/search?q=" + url.QueryEscape(q)
}

// WhatsAppLink builds a share link carrying text. The service itself is
// never contacted.
func WhatsAppLink(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return "https://wa.me/?text=" + url.QueryEscape(text)
}

// Name is the one-line label: "UF | tier | sector | N kW".
func Name(r domain.DerivedRecord) string {
	return fmt.Sprintf("%s | %s | %s | %s kW", r.Region, r.Tier, r.Sector, FormatKW(r.DemandKW))
}

func Description(r domain.DerivedRecord) string {
	return fmt.Sprintf("UF: %s | CNAE: %s | Endereço: %s | Bairro: %s | CEP: %s",
		r.Region, r.ActivityCode, r.Street, r.District, r.PostalCode)
}

// Links holds the outbound URLs of one record.
type Links struct {
	GoogleMaps   string `json:"google_maps"`
	GoogleSearch string `json:"google_search"`
	WhatsApp     string `json:"whatsapp"`
}

func LinksFor(r domain.DerivedRecord) Links {
	addr := r.Address()
	maps := MapsLink(r.Latitude, r.Longitude, addr)
	return Links{
		GoogleMaps:   maps,
		GoogleSearch: SearchLink(addr, r.Sector),
		WhatsApp:     WhatsAppLink(joinNonEmpty(" ", Name(r), maps)),
	}
}

// FormatKW renders demand with thousands separators and at most one decimal.
func FormatKW(kw float64) string {
	return humanize.Commaf(math.Round(kw*10) / 10)
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
