package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-fruver/internal/common"
)

var (
	// ErrDuplicateQuality means two active variations of a product share a quality label.
	ErrDuplicateQuality = errors.New("catalog: duplicate variation quality")
	// ErrDuplicatePresentation means a variation lists the same presentation label twice.
	ErrDuplicatePresentation = errors.New("catalog: duplicate presentation label")
)

// ValidateProduct checks struct constraints and the catalog uniqueness rules.
func ValidateProduct(p Product) error {
	if err := common.Validator().Struct(p); err != nil {
		return err
	}
	return ValidateVariations(p.Variations)
}

// ValidateVariations enforces case-insensitive uniqueness of qualities and
// labels and that every presentation carries a usable price.
func ValidateVariations(variations []Variation) error {
	var errs []error
	qualities := make(map[string]struct{}, len(variations))
	for _, v := range variations {
		q := normalise(v.Quality)
		if v.Active {
			if _, dup := qualities[q]; dup {
				errs = append(errs, fmt.Errorf("variation %q: %w", v.Quality, ErrDuplicateQuality))
			}
			qualities[q] = struct{}{}
		}
		labels := make(map[string]struct{}, len(v.Presentations))
		for _, p := range v.Presentations {
			l := normalise(p.Label)
			if _, dup := labels[l]; dup {
				errs = append(errs, fmt.Errorf("variation %q presentation %q: %w", v.Quality, p.Label, ErrDuplicatePresentation))
			}
			labels[l] = struct{}{}
			if err := p.Prices.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("variation %q presentation %q: %w", v.Quality, p.Label, err))
			}
		}
	}
	return errors.Join(errs...)
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
