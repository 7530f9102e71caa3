// Package boundary loads municipal boundary polygons and their region
// metadata.
package boundary

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/rooftop-cli/internal/geometry"
)

// CodeWidth is the fixed width of a municipality code.
const CodeWidth = 5

// Unknown fills region metadata for municipalities the catalog does not list.
const Unknown = "Unknown"

// ErrDuplicateCode is returned when two boundaries share a code.
var ErrDuplicateCode = eris.New("boundary: duplicate code")

// Boundary is one municipality. Geometry is nil when the source has none and
// may be of any kind; the aggregator decides what it can use.
type Boundary struct {
	Code       string
	Name       string
	DeptCode   string
	DeptName   string
	RegionCode string
	RegionName string
	Subregion  string
	Geometry   orb.Geometry
	AreaKm2    float64
	Valid      bool
	// Defect describes why Valid is false.
	Defect string
}

// FieldMap names the source attributes holding each boundary field. Code
// falls back to CodeCandidates when its attribute is absent. An empty Area
// means the area is measured from the geometry.
type FieldMap struct {
	Code      string `yaml:"code" mapstructure:"code"`
	Name      string `yaml:"name" mapstructure:"name"`
	DeptName  string `yaml:"dept_name" mapstructure:"dept_name"`
	Region    string `yaml:"region" mapstructure:"region"`
	Subregion string `yaml:"subregion" mapstructure:"subregion"`
	Area      string `yaml:"area" mapstructure:"area"`
}

// CodeCandidates are the attribute names national boundary files commonly
// use for the municipality code, in order of preference.
var CodeCandidates = []string{"MPIO_CDPMP", "COD_MPIO", "DIVIPOLA", "MPIO_CODIGO", "CODIGO", "MPIO_CCNCT"}

// DefaultFieldMap matches the national statistics office's municipal layer.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Code:     "MPIO_CDPMP",
		Name:     "MPIO_CNMBR",
		DeptName: "DPTO_CNMBR",
	}
}

// attrs looks up attributes case-insensitively.
type attrs map[string]string

func (a attrs) get(key string) string {
	if key == "" {
		return ""
	}
	return a[strings.ToLower(key)]
}

func (fm FieldMap) code(a attrs) string {
	if v := a.get(fm.Code); v != "" {
		return v
	}
	for _, c := range CodeCandidates {
		if v := a.get(c); v != "" {
			return v
		}
	}
	return ""
}

// build assembles a boundary from attributes and geometry.
func (fm FieldMap) build(a attrs, g orb.Geometry) (Boundary, error) {
	code, err := NormalizeCode(fm.code(a))
	if err != nil {
		return Boundary{}, err
	}
	b := Boundary{
		Code:       code,
		Name:       CleanText(a.get(fm.Name)),
		DeptCode:   code[:2],
		DeptName:   CleanText(a.get(fm.DeptName)),
		RegionName: CleanText(a.get(fm.Region)),
		Subregion:  CleanText(a.get(fm.Subregion)),
		Geometry:   g,
	}
	b.RegionCode = b.RegionName
	if v := a.get(fm.Area); v != "" {
		if area, perr := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); perr == nil {
			b.AreaKm2 = area
		}
	}
	b.finish()
	return b, nil
}

// finish measures the area when the source had none and checks validity.
func (b *Boundary) finish() {
	if b.AreaKm2 <= 0 && b.Geometry != nil {
		b.AreaKm2 = geometry.AreaKm2(b.Geometry)
	}
	if err := geometry.Validate(b.Geometry); err != nil {
		b.Valid = false
		b.Defect = err.Error()
		return
	}
	b.Valid, b.Defect = true, ""
}

// NormalizeCode trims a code, drops a trailing ".0" left by spreadsheet
// exports, and zero-pads numeric codes to CodeWidth.
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	code = strings.TrimSuffix(code, ".0")
	if code == "" {
		return "", eris.New("boundary: empty code")
	}
	if _, err := strconv.ParseUint(code, 10, 64); err == nil && len(code) < CodeWidth {
		code = strings.Repeat("0", CodeWidth-len(code)) + code
	}
	if len(code) < 2 {
		return "", eris.Errorf("boundary: code %q too short", raw)
	}
	return code, nil
}

// CleanText trims s, decodes it from Windows-1252 when it is not valid
// UTF-8 (common in DBF files), and normalizes it to NFC so that accented
// names compare and sort consistently.
func CleanText(s string) string {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if !utf8.ValidString(s) {
		if dec, err := charmap.Windows1252.NewDecoder().String(s); err == nil {
			s = dec
		}
	}
	return norm.NFC.String(s)
}

// CheckUnique fails when two boundaries share a code.
func CheckUnique(bs []Boundary) error {
	seen := make(map[string]struct{}, len(bs))
	for _, b := range bs {
		if _, dup := seen[b.Code]; dup {
			return eris.Wrapf(ErrDuplicateCode, "boundary: code %s", b.Code)
		}
		seen[b.Code] = struct{}{}
	}
	return nil
}
