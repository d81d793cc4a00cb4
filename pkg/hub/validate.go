package hub

import (
	"fmt"
	"regexp"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var ownerRepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidateReference checks the shape of a hub reference.
func ValidateReference(ref model.HubReference) error {
	err := validation.ValidateStruct(&ref,
		validation.Field(&ref.Type, validation.Required,
			validation.In(model.HubReferenceGitHub, model.HubReferenceURL, model.HubReferenceLocal)),
		validation.Field(&ref.Location, validation.Required,
			validation.When(ref.Type == model.HubReferenceGitHub,
				validation.Match(ownerRepoPattern).Error("must be owner/name"))),
	)
	if err != nil {
		return pkgerrors.NewConfigError("hub reference", ref.Location, err.Error())
	}
	return nil
}

func hubSourceRule(value any) error {
	s, _ := value.(model.HubSource)
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Type, validation.Required, validation.By(func(any) error {
			if !s.Type.Valid() {
				return fmt.Errorf("unsupported source type")
			}
			return nil
		})),
		validation.Field(&s.URL, validation.Required),
	)
}

func profileRule(value any) error {
	p, _ := value.(model.Profile)
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required, validation.Match(idPattern)),
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Bundles, validation.Each(validation.By(func(value any) error {
			b, _ := value.(model.ProfileBundle)
			return validation.ValidateStruct(&b, validation.Field(&b.ID, validation.Required))
		}))),
	)
}

// ValidateHub checks a hub document against the hub schema: required
// metadata, well-formed sources and profiles, unique profile ids, and bundle
// sources that name a declared hub source.
func ValidateHub(h *model.Hub) error {
	if h == nil {
		return pkgerrors.NewConfigError("hub", "", "document is empty")
	}
	err := validation.ValidateStruct(h,
		validation.Field(&h.Version, validation.Required),
		validation.Field(&h.Metadata, validation.By(func(any) error {
			return validation.ValidateStruct(&h.Metadata, validation.Field(&h.Metadata.Name, validation.Required))
		})),
		validation.Field(&h.Sources, validation.Each(validation.By(hubSourceRule))),
		validation.Field(&h.Profiles, validation.Each(validation.By(profileRule))),
	)
	if err != nil {
		return pkgerrors.NewConfigError("hub", h.Metadata.Name, err.Error())
	}

	seen := make(map[string]bool, len(h.Profiles))
	for _, p := range h.Profiles {
		if seen[p.ID] {
			return pkgerrors.NewConfigError("profiles.id", p.ID, "duplicate profile id")
		}
		seen[p.ID] = true
		for _, b := range p.Bundles {
			if b.Source != "" && h.FindSource(b.Source) == nil {
				return pkgerrors.NewConfigError("profiles.bundles.source", b.Source,
					fmt.Sprintf("profile %s references an undeclared source", p.ID))
			}
		}
	}
	return nil
}
