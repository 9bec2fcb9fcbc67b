package pipeline

import (
	"fmt"
	"log"
	"strings"

	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

// Names of the monitoring options. Each doubles as the CLI flag.
const (
	OptionVariables         = "variables"
	OptionScaling           = "scaling"
	OptionT2Method          = "t2-method"
	OptionQMethod           = "q-method"
	OptionComponents        = "components"
	OptionVarianceThreshold = "variance-threshold"
	OptionConfidence        = "confidence"
	OptionJoint             = "joint"
)

// OptionType represents the possible types of an Option's value.
type OptionType int

const (
	// BoolOption reflects the boolean value type.
	BoolOption OptionType = iota
	// IntOption reflects the integer value type.
	IntOption
	// StringOption reflects the string value type.
	StringOption
	// FloatOption reflects a floating point value type.
	FloatOption
	// StringsOption reflects the array of strings value type.
	StringsOption
)

// String returns the type name shown next to a flag in the CLI help; booleans
// have none.
func (t OptionType) String() string {
	switch t {
	case BoolOption:
		return ""
	case IntOption:
		return "int"
	case StringOption, StringsOption:
		return "string"
	case FloatOption:
		return "float"
	}

	log.Panicf("invalid OptionType value %d", t)

	return ""
}

// Option describes one monitoring setting exposed on the command line.
type Option struct {
	// Default is the value used when neither the flag nor the config sets it.
	Default any
	// Name identifies the option; the CLI flag is "--" + Name.
	Name string
	// Shorthand is the optional one-letter flag.
	Shorthand string
	// Description is the flag help text.
	Description string
	// Type specifies the kind of the option's value.
	Type OptionType
}

// FormatDefault renders Default for the CLI help.
func (o Option) FormatDefault() string {
	if o.Type == StringsOption {
		values, ok := o.Default.([]string)
		if !ok {
			return fmt.Sprint(o.Default)
		}

		return fmt.Sprintf("%q", strings.Join(values, ","))
	}

	if o.Type != StringOption {
		return fmt.Sprint(o.Default)
	}

	return fmt.Sprintf("%q", o.Default)
}

// Options lists the model and limit settings of a run with their defaults.
func Options() []Option {
	return []Option{
		{
			Name:        OptionVariables,
			Description: "numeric columns to model (default: every non-auxiliary column)",
			Type:        StringsOption,
			Default:     []string(nil),
		},
		{
			Name:        OptionScaling,
			Description: "scaling convention: autoscale or center",
			Type:        StringOption,
			Default:     string(pca.ScalingAutoscale),
		},
		{
			Name:        OptionT2Method,
			Description: "T² limit method: f, chi2 or empirical",
			Type:        StringOption,
			Default:     string(spc.T2MethodF),
		},
		{
			Name:        OptionQMethod,
			Description: "Q limit method: jackson-mudholkar, box, moments or empirical",
			Type:        StringOption,
			Default:     string(spc.QMethodJacksonMudholkar),
		},
		{
			Name:        OptionComponents,
			Shorthand:   "k",
			Description: "principal components to retain",
			Type:        IntOption,
			Default:     DefaultComponents,
		},
		{
			Name:        OptionVarianceThreshold,
			Description: "retain components up to this cumulative explained variance (replaces --components)",
			Type:        FloatOption,
			Default:     0.0,
		},
		{
			Name:        OptionConfidence,
			Shorthand:   "c",
			Description: "control limit confidence in (0,1)",
			Type:        FloatOption,
			Default:     DefaultConfidence,
		},
		{
			Name:        OptionJoint,
			Description: "split the confidence between T² and Q (Šidák); --joint=false limits each statistic at c",
			Type:        BoolOption,
			Default:     DefaultJoint,
		},
	}
}
