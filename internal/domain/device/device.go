// Package device is the closed catalog of durable medical equipment order
// types, their templates and output labels.
package device

import (
	"fmt"
	"path"
	"strings"
)

// DeviceType selects the order template and the output label.
type DeviceType string

const (
	CGM                DeviceType = "cgm"
	Ankle              DeviceType = "ankle"
	Knee               DeviceType = "knee"
	Back               DeviceType = "back"
	Hip                DeviceType = "hip"
	Shoulder           DeviceType = "shoulder"
	Wrist              DeviceType = "wrist"
	Elbow              DeviceType = "elbow"
	LymphedemaArms     DeviceType = "lymphedema_arms"
	LymphedemaFullLegs DeviceType = "lymphedema_full_legs"
	LymphedemaLeg      DeviceType = "lymphedema_leg"
)

// UnknownLabel is the label for templates outside the catalog.
const UnknownLabel = "Unknown-Type"

// All lists every device type in catalog order.
var All = []DeviceType{
	CGM, Ankle, Knee, Back, Hip, Shoulder, Wrist, Elbow,
	LymphedemaArms, LymphedemaFullLegs, LymphedemaLeg,
}

var templates = map[DeviceType]string{
	CGM:                "do.docx",
	Ankle:              "docs_braces/Ankle_DO.docx",
	Knee:               "docs_braces/Knee_DO.docx",
	Back:               "docs_braces/Back_DO.docx",
	Hip:                "docs_braces/Hip_DO.docx",
	Shoulder:           "docs_braces/Shoulder_DO.docx",
	Wrist:              "docs_braces/Wrist_DO.docx",
	Elbow:              "docs_braces/Elbow_DO.docx",
	LymphedemaArms:     "docs_lymphedema/lymphodema-Arms.docx",
	LymphedemaFullLegs: "docs_lymphedema/lymphodema-full-legs.docx",
	LymphedemaLeg:      "docs_lymphedema/lymphodema-leg.docx",
}

// labels is keyed by template basename. Knee and wrist templates have no
// entry and therefore name their output Unknown-Type.
var labels = map[string]string{
	"do.docx":                   "CGM-Template",
	"Back_DO.docx":              "Back-Brace",
	"Ankle_DO.docx":             "Ankle-Brace",
	"Hip_DO.docx":               "Hip-Brace",
	"Elbow_DO.docx":             "Elbow-Brace",
	"Shoulder_DO.docx":          "Shoulder-Brace",
	"lymphodema-Arms.docx":      "Lymphodema-Arms",
	"lymphodema-full-legs.docx": "Lymphodema-full-legs",
	"lymphodema-leg.docx":       "Lymphodema-leg",
}

// Parse accepts a device tag case-insensitively, treating '-' and ' ' like '_'.
func Parse(s string) (DeviceType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	// "lymphodema" is the spelling used by the template files.
	norm = strings.Replace(norm, "lymphodema", "lymphedema", 1)
	d := DeviceType(norm)
	if _, ok := templates[d]; !ok {
		return "", fmt.Errorf("unknown device type %q", s)
	}
	return d, nil
}

// Valid reports whether d is in the catalog.
func (d DeviceType) Valid() bool {
	_, ok := templates[d]
	return ok
}

// TemplateFor returns the template path relative to the template root.
func TemplateFor(d DeviceType) string {
	return templates[d]
}

// LabelForTemplate maps a template reference to its output label using the
// basename only.
func LabelForTemplate(templateRef string) string {
	base := path.Base(strings.ReplaceAll(templateRef, "\\", "/"))
	if label, ok := labels[base]; ok {
		return label
	}
	return UnknownLabel
}

// Title is the human-readable name of d, e.g. "Lymphedema Full Legs".
func Title(d DeviceType) string {
	words := strings.Fields(strings.ReplaceAll(string(d), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
