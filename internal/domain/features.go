package domain

// FieldKind describes how a raw request value is coerced into a model input.
type FieldKind int

const (
	// FieldNumeric values are cast to float64, defaulting to 0.
	FieldNumeric FieldKind = iota
	// FieldBinary values are yes/no answers mapped to 1/0.
	FieldBinary
	// FieldCategorical values are free-form labels encoded to integer codes.
	FieldCategorical
	// FieldDerived values are computed from other fields and never read from the request.
	FieldDerived
)

// String returns the lowercase name of the kind
func (k FieldKind) String() string {
	switch k {
	case FieldNumeric:
		return "numeric"
	case FieldBinary:
		return "binary"
	case FieldCategorical:
		return "categorical"
	case FieldDerived:
		return "derived"
	default:
		return "unknown"
	}
}

// Field is a single named column of the model input schema
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
}

// FeatureSpec is the ordered list of fields every classifier consumes.
// Order is the column order used at training time and must not change.
type FeatureSpec []Field

// Names returns the field names in column order
func (s FeatureSpec) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Width returns the length of a canonical vector built from this spec
func (s FeatureSpec) Width() int {
	return len(s)
}

// Index returns the column of the named field, or -1
func (s FeatureSpec) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// OfKind returns the names of all fields of the given kind, in column order
func (s FeatureSpec) OfKind(kind FieldKind) []string {
	var names []string
	for _, f := range s {
		if f.Kind == kind {
			names = append(names, f.Name)
		}
	}
	return names
}

// Feature names shared by the oral-systemic models.
const (
	FeatureAge                = "AGE"
	FeatureSmokingStatus      = "Smoking_Status"
	FeatureMedicationUse      = "Medication_Use"
	FeaturePHQ2               = "PHQ_2"
	FeatureBMI                = "BMI"
	FeatureHbA1c              = "Blood_Glucose_HbA1c"
	FeatureSystolic           = "Hypertension_Systolic"
	FeatureDiastolic          = "Hypertension_Diastolic"
	FeatureCRP                = "CRP_Estimate"
	FeatureMissingTeeth       = "missing_teeth_count"
	FeatureGumDisease         = "gum_disease"
	FeatureDentalVisits       = "dental_visits_yearly"
	FeatureHasCavities        = "has_cavities"
	FeatureBrushingFrequency  = "brushing_frequency"
	FeaturePlaqueLevel        = "plaque_level"
	FeatureBleedingOnBrushing = "bleeding_on_brushing"
	FeatureOralLesions        = "oral_lesions_present"
	FeatureDryMouth           = "dry_mouth"
	FeatureTotalRootLength    = "total_root_length_mm"
	FeatureCEJToBoneCrest     = "cej_to_bone_crest_mm"
	FeatureBoneLossPercent    = "bone_loss_percent"
)

// DefaultFeatureSpec returns the 21-column schema the bundled models were trained on
func DefaultFeatureSpec() FeatureSpec {
	return FeatureSpec{
		{Name: FeatureAge, Kind: FieldNumeric},
		{Name: FeatureSmokingStatus, Kind: FieldCategorical},
		{Name: FeatureMedicationUse, Kind: FieldBinary},
		{Name: FeaturePHQ2, Kind: FieldNumeric},
		{Name: FeatureBMI, Kind: FieldNumeric},
		{Name: FeatureHbA1c, Kind: FieldNumeric},
		{Name: FeatureSystolic, Kind: FieldNumeric},
		{Name: FeatureDiastolic, Kind: FieldNumeric},
		{Name: FeatureCRP, Kind: FieldNumeric},
		{Name: FeatureMissingTeeth, Kind: FieldNumeric},
		{Name: FeatureGumDisease, Kind: FieldBinary},
		{Name: FeatureDentalVisits, Kind: FieldNumeric},
		{Name: FeatureHasCavities, Kind: FieldBinary},
		{Name: FeatureBrushingFrequency, Kind: FieldNumeric},
		{Name: FeaturePlaqueLevel, Kind: FieldCategorical},
		{Name: FeatureBleedingOnBrushing, Kind: FieldBinary},
		{Name: FeatureOralLesions, Kind: FieldBinary},
		{Name: FeatureDryMouth, Kind: FieldBinary},
		{Name: FeatureTotalRootLength, Kind: FieldNumeric},
		{Name: FeatureCEJToBoneCrest, Kind: FieldNumeric},
		{Name: FeatureBoneLossPercent, Kind: FieldDerived},
	}
}

// RawInput is an untrusted request payload keyed by field name
type RawInput map[string]interface{}
