// Package datasheet recognises lamp products in extracted datasheet text.
// Labels are matched in English first, then German.
package datasheet

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/datasheet-rag/internal/core/domain"
)

var (
	skuPatterns = compileAll(
		`SKU[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`Product\s+Code[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`(?:Item|Part|Model)\s+Number[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`Product\s+ID[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`\b(ZMP[_\s]*\d+)`,
		`Artikel(?:nummer)?[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`Produktcode[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
		`Art\.-Nr\.?[:\s]+([A-Z0-9][A-Z0-9\-/]*)`,
	)
	primaryNumberPatterns = compileAll(
		`Primary\s+Product\s+Number[:\s]+(\d+)`,
		`Product\s+Number[:\s]+(\d+)`,
		`prim[äa]re\s+Erzeugnisnummer[:\s]+(\d+)`,
		`Erzeugnisnummer[:\s]+(\d+)`,
		`Produktnummer[:\s]+(\d+)`,
	)
	powerPatterns = compileAll(
		`(?:Power|Wattage|Nominal\s+power|Leistung|Nennleistung)[:\s]+(\d+(?:[.,]\d+)*)\s*W\b`,
		`(\d+(?:[.,]\d+)*)\s*W(?:att)?\b`,
	)
	voltagePatterns = compileAll(
		`(?:Voltage|Operating\s+voltage|Spannung|Nennspannung)[:\s]+(\d+(?:[.,]\d+)?)\s*V\b`,
		`(\d+(?:[.,]\d+)?)\s*V(?:olt)?\b`,
	)
	fluxPatterns = compileAll(
		`(?:Luminous\s+flux|Light\s+output|Lichtstrom)[:\s]+(\d+(?:[.,]\d+)*)\s*(?:lm|Lumen)\b`,
		`(\d+(?:[.,]\d+)*)\s*(?:lm|Lumen)\b`,
	)
	colorTemperaturePatterns = compileAll(
		`(?:Colou?r\s+temperature|CCT|Farbtemperatur)[:\s]+(\d{4,5})\s*K\b`,
		`\b(\d{4,5})\s*K(?:elvin)?\b`,
	)
	colorRenderingPatterns = compileAll(
		`(?:CRI|Colou?r\s+rendering(?:\s+index)?|Farbwiedergabe(?:index)?)[:\s]+([<>]?\s*\d{2,3})`,
		`\bRa[:\s]+([<>]?\s*\d{2,3})`,
	)
	lifetimePatterns = compileAll(
		`(?:Lifetime|Service\s+life|Operating\s+life|Lebensdauer|Betriebsdauer)[:\s]+(\d+(?:[.,]\d+)*)\s*(?:hours|h|Stunden)\b`,
		`(\d+(?:[.,]\d+)*)\s*(?:hours|Stunden|h)\b`,
	)
	ipPatterns = compileAll(
		`\bIP\s?(\d{2})\b`,
	)
	applicationPatterns = compileAll(
		`(?:Application(?:\s+area)?|Anwendungsbereich|Einsatzbereich|Verwendung)[:\s]+([^.\n]+)`,
	)
	namePatterns = compileAll(
		`(?m)^\s*(?:Product\s+name|Produktname|Bezeichnung|Name)\s*:\s*(.+)$`,
	)
	certificationPattern = regexp.MustCompile(`(?i)\b(CE|ENEC|RoHS|UL|VDE|EN\s?\d{3,5}(?:-\d+)*|IEC\s?\d{3,5}(?:-\d+)*)\b`)
	skuOnlyPattern       = regexp.MustCompile(`(?i)^(?:SKU|Artikel(?:nummer)?|Art\.-Nr\.?)\b`)
	longNumberPattern    = regexp.MustCompile(`\b(\d{7,})\b`)
	headingPattern       = regexp.MustCompile(`^[A-ZÄÖÜ][\p{L}0-9 \-/.]+$`)
	thousandsPattern     = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
	zmpFilenamePattern   = regexp.MustCompile(`(?i)ZMP[_\s]*(\d+)`)
)

type Parser struct {
	maxNameLength int
}

func NewParser() *Parser {
	return &Parser{maxNameLength: 100}
}

// Parse returns one product per recognised section. Sections without an
// identifiable SKU are skipped unless the text holds a single section, in
// which case the SKU is derived from the source filename.
func (p *Parser) Parse(text, sourceDocument string) []domain.Product {
	sections := splitSections(text)
	out := make([]domain.Product, 0, len(sections))
	seen := map[string]struct{}{}
	for _, section := range sections {
		product := p.parseSection(section, sourceDocument)
		if product.SKU == "" && len(sections) == 1 {
			product.SKU = skuFromFilename(sourceDocument)
		}
		if product.SKU == "" {
			continue
		}
		key := strings.ToLower(product.SKU)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, product)
	}
	return out
}

func (p *Parser) parseSection(section, sourceDocument string) domain.Product {
	product := domain.Product{
		SKU:                  strings.ReplaceAll(firstMatch(skuPatterns, section), " ", "_"),
		PrimaryProductNumber: firstMatch(primaryNumberPatterns, section),
		Name:                 p.productName(section),
		Description:          section,
		PowerW:               parseNumber(firstMatch(powerPatterns, section)),
		VoltageV:             parseNumber(firstMatch(voltagePatterns, section)),
		LuminousFluxLm:       parseNumber(firstMatch(fluxPatterns, section)),
		LifetimeHours:        parseNumber(firstMatch(lifetimePatterns, section)),
		ApplicationArea:      strings.TrimSpace(firstMatch(applicationPatterns, section)),
		Certifications:       certifications(section),
		SourceDocument:       sourceDocument,
	}
	if product.SKU == "" {
		product.SKU = firstLineNumber(section)
	}
	if cct := firstMatch(colorTemperaturePatterns, section); cct != "" {
		product.ColorTemperatureK = cct + " K"
	}
	if cri := firstMatch(colorRenderingPatterns, section); cri != "" {
		product.ColorRendering = strings.ReplaceAll(cri, " ", "")
	}
	if ip := firstMatch(ipPatterns, section); ip != "" {
		product.IPRating = "IP" + ip
	}
	return product
}

func (p *Parser) productName(section string) string {
	if name := strings.TrimSpace(firstMatch(namePatterns, section)); name != "" {
		return truncateRunes(name, p.maxNameLength)
	}
	lines := strings.Split(section, "\n")
	for i, line := range lines {
		if i >= 5 {
			break
		}
		line = strings.TrimSpace(line)
		n := len([]rune(line))
		if n > 5 && n < p.maxNameLength && headingPattern.MatchString(line) && !skuOnlyPattern.MatchString(line) {
			return line
		}
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, p.maxNameLength)
		}
	}
	return "Unknown product"
}

// splitSections groups blank-line separated blocks so that each section
// carries at most one SKU marker.
func splitSections(text string) []string {
	blocks := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var (
		sections []string
		current  []string
		hasSKU   bool
	)
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		blockHasSKU := firstMatch(skuPatterns, block) != ""
		if blockHasSKU && hasSKU {
			sections = append(sections, strings.Join(current, "\n\n"))
			current, hasSKU = nil, false
		}
		current = append(current, block)
		hasSKU = hasSKU || blockHasSKU
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n\n"))
	}
	return sections
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func parseNumber(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if thousandsPattern.MatchString(raw) {
		raw = strings.NewReplacer(".", "", ",", "").Replace(raw)
	} else {
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func certifications(text string) []string {
	matches := certificationPattern.FindAllStringSubmatch(text, -1)
	seen := map[string]struct{}{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		cert := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		if cert == "ROHS" {
			cert = "RoHS"
		}
		if _, ok := seen[cert]; ok {
			continue
		}
		seen[cert] = struct{}{}
		out = append(out, cert)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstLineNumber(section string) string {
	first, _, _ := strings.Cut(section, "\n")
	if m := longNumberPattern.FindStringSubmatch(first); len(m) > 1 {
		return m[1]
	}
	return ""
}

func skuFromFilename(sourceDocument string) string {
	base := filepath.Base(sourceDocument)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if m := zmpFilenamePattern.FindStringSubmatch(stem); len(m) > 1 {
		return "ZMP_" + m[1]
	}
	stem = strings.Trim(strings.ToUpper(stem), " ._-")
	if stem == "" || stem == "." {
		return ""
	}
	return strings.Join(strings.Fields(stem), "_")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
