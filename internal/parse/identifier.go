package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/flplemos/senac-agenda-central/internal/model"
)

var (
	seqRe    = regexp.MustCompile(`[-_\s]*(\d+)\s*$`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// ParsedIdentifier holds the structured data parsed from an asset tag.
type ParsedIdentifier struct {
	Prefix string
	Seq    int
}

// String renders the canonical tag, e.g. "TAB-07".
func (p ParsedIdentifier) String() string {
	return fmt.Sprintf("%s-%02d", p.Prefix, p.Seq)
}

var prefixTypes = map[string]model.EquipmentType{
	"TAB": model.EquipmentTablet,
	"TB":  model.EquipmentTablet,
	"NB":  model.EquipmentNotebook,
	"NTB": model.EquipmentNotebook,
	"NOT": model.EquipmentNotebook,
	"VR":  model.EquipmentVRHeadset,
	"OVR": model.EquipmentVRHeadset,
}

var typeAliases = map[string]model.EquipmentType{
	"tablet":     model.EquipmentTablet,
	"tablets":    model.EquipmentTablet,
	"notebook":   model.EquipmentNotebook,
	"notebooks":  model.EquipmentNotebook,
	"laptop":     model.EquipmentNotebook,
	"vr":         model.EquipmentVRHeadset,
	"vr_headset": model.EquipmentVRHeadset,
	"vr_glasses": model.EquipmentVRHeadset,
	"oculos_vr":  model.EquipmentVRHeadset,
}

// ParseIdentifier extracts the prefix and sequence number from a raw asset tag
// such as "TAB-07", "nb 3" or "VR_12".
func ParseIdentifier(raw string) (ParsedIdentifier, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = spacesRe.ReplaceAllString(s, " ")

	loc := seqRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return ParsedIdentifier{}, fmt.Errorf("unable to parse sequence from identifier: %q", raw)
	}
	seq, err := strconv.Atoi(s[loc[2]:loc[3]])
	if err != nil {
		return ParsedIdentifier{}, fmt.Errorf("unable to parse sequence from identifier: %q", raw)
	}

	prefix := strings.TrimSpace(s[:loc[0]])
	if prefix == "" {
		return ParsedIdentifier{}, fmt.Errorf("identifier has no prefix: %q", raw)
	}
	return ParsedIdentifier{Prefix: prefix, Seq: seq}, nil
}

// EquipmentType normalizes the upstream type label. When the label is empty or
// unknown, the identifier prefix decides.
func EquipmentType(rawType, identifier string) (model.EquipmentType, error) {
	key := strings.ToLower(strings.TrimSpace(rawType))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}

	parsed, err := ParseIdentifier(identifier)
	if err == nil {
		if t, ok := prefixTypes[parsed.Prefix]; ok {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown equipment type %q for identifier %q", rawType, identifier)
}
