// Package model holds the linear scam classifier and its training routine.
package model

// Dimensions is the length of the feature vector.
const Dimensions = 10

// FeatureNames lists the attribute keys in vector order.
var FeatureNames = [Dimensions]string{
	"length",
	"in_blacklist",
	"blacklist_trust",
	"is_premium",
	"is_shortcode",
	"has_suspicious_pattern",
	"repeated_digits",
	"has_url",
	"urgency_words",
	"money_words",
}

// Vector is the numeric input of the classifier.
type Vector [Dimensions]float64

// VectorFrom builds a vector from attribute-bundle style features.
// Missing or non-numeric keys contribute 0; booleans map to 0 or 1.
func VectorFrom(attrs map[string]any) Vector {
	var v Vector
	for i, name := range FeatureNames {
		v[i] = toFloat(attrs[name])
	}
	return v
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}
