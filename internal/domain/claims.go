package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxExtensions bounds the passthrough extension map on a credential subject.
	MaxExtensions      = 16
	maxExtensionKeyLen = 64
	maxExtensionValLen = 256
)

var extensionKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// BenefitType enumerates the closed set of benefit kinds a credential can grant.
type BenefitType string

const (
	BenefitGymAccess        BenefitType = "gym_access"
	BenefitGroupClass       BenefitType = "group_class"
	BenefitPersonalTraining BenefitType = "personal_training"
	BenefitAmenity          BenefitType = "amenity"
	BenefitGuestPass        BenefitType = "guest_pass"
)

// Valid reports whether t is a known benefit type.
func (t BenefitType) Valid() bool {
	switch t {
	case BenefitGymAccess, BenefitGroupClass, BenefitPersonalTraining, BenefitAmenity, BenefitGuestPass:
		return true
	}
	return false
}

// CredentialTypeName returns the VC type tag for the benefit, e.g. GroupClassBenefitCredential.
func (t BenefitType) CredentialTypeName() string {
	var b strings.Builder
	for _, part := range strings.Split(string(t), "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	b.WriteString("BenefitCredential")
	return b.String()
}

// SubjectClaims is the credentialSubject embedded in the signed payload.
type SubjectClaims struct {
	ID           string            `json:"id"`
	HolderName   string            `json:"holderName,omitempty"`
	MembershipID string            `json:"membershipId"`
	Benefit      BenefitClaims     `json:"benefit"`
	Gym          GymInfo           `json:"gym"`
	Extensions   map[string]string `json:"extensions,omitempty"`
}

// GymInfo describes the gym or service location honouring the benefit.
type GymInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// BenefitClaims is a tagged variant: Type selects which detail block may be present.
type BenefitClaims struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Type            BenefitType       `json:"type"`
	MaxUsesPerMonth int               `json:"maxUsesPerMonth,omitempty"`
	Access          *AccessDetails    `json:"access,omitempty"`
	Class           *ClassDetails     `json:"class,omitempty"`
	Training        *TrainingDetails  `json:"training,omitempty"`
	Amenity         *AmenityDetails   `json:"amenity,omitempty"`
	GuestPass       *GuestPassDetails `json:"guestPass,omitempty"`
}

// AccessDetails qualifies a gym_access benefit.
type AccessDetails struct {
	Zones []string `json:"zones,omitempty"`
}

// ClassDetails qualifies a group_class benefit.
type ClassDetails struct {
	Category   string `json:"category"`
	Instructor string `json:"instructor,omitempty"`
}

// TrainingDetails qualifies a personal_training benefit.
type TrainingDetails struct {
	SessionMinutes int `json:"sessionMinutes"`
}

// AmenityDetails qualifies an amenity benefit (sauna, pool, ...).
type AmenityDetails struct {
	Amenity string `json:"amenity"`
}

// GuestPassDetails qualifies a guest_pass benefit.
type GuestPassDetails struct {
	GuestsPerVisit int `json:"guestsPerVisit"`
}

// Capped reports whether the benefit enforces a monthly use cap.
func (b BenefitClaims) Capped() bool {
	return b.MaxUsesPerMonth > 0
}

// Validate checks the subject before anything is signed.
func (s SubjectClaims) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: holder identifier is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(s.ID, "did:") {
		return fmt.Errorf("%w: holder identifier must be a DID", ErrInvalidInput)
	}
	if strings.TrimSpace(s.MembershipID) == "" {
		return fmt.Errorf("%w: membership id is required", ErrInvalidInput)
	}
	if err := s.Benefit.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(s.Gym.ID) == "" || strings.TrimSpace(s.Gym.Name) == "" {
		return fmt.Errorf("%w: gym id and name are required", ErrInvalidInput)
	}
	return validateExtensions(s.Extensions)
}

// Validate enforces the tagged-variant rules of a benefit.
func (b BenefitClaims) Validate() error {
	if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: benefit id and name are required", ErrInvalidInput)
	}
	if !b.Type.Valid() {
		return fmt.Errorf("%w: unknown benefit type %q", ErrInvalidInput, b.Type)
	}
	if b.MaxUsesPerMonth < 0 {
		return fmt.Errorf("%w: maxUsesPerMonth must not be negative", ErrInvalidInput)
	}

	set := map[BenefitType]bool{
		BenefitGymAccess:        b.Access != nil,
		BenefitGroupClass:       b.Class != nil,
		BenefitPersonalTraining: b.Training != nil,
		BenefitAmenity:          b.Amenity != nil,
		BenefitGuestPass:        b.GuestPass != nil,
	}
	for variant, present := range set {
		if present && variant != b.Type {
			return fmt.Errorf("%w: %s details not allowed on %s benefit", ErrInvalidInput, variant, b.Type)
		}
	}

	switch b.Type {
	case BenefitGroupClass:
		if b.Class != nil && strings.TrimSpace(b.Class.Category) == "" {
			return fmt.Errorf("%w: class category is required", ErrInvalidInput)
		}
	case BenefitPersonalTraining:
		if b.Training != nil && b.Training.SessionMinutes <= 0 {
			return fmt.Errorf("%w: session minutes must be positive", ErrInvalidInput)
		}
	case BenefitAmenity:
		if b.Amenity != nil && strings.TrimSpace(b.Amenity.Amenity) == "" {
			return fmt.Errorf("%w: amenity name is required", ErrInvalidInput)
		}
	case BenefitGuestPass:
		if b.GuestPass != nil && b.GuestPass.GuestsPerVisit <= 0 {
			return fmt.Errorf("%w: guests per visit must be positive", ErrInvalidInput)
		}
	}
	return nil
}

func validateExtensions(ext map[string]string) error {
	if len(ext) > MaxExtensions {
		return fmt.Errorf("%w: at most %d extensions allowed", ErrInvalidInput, MaxExtensions)
	}
	for k, v := range ext {
		if len(k) == 0 || len(k) > maxExtensionKeyLen || !extensionKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: invalid extension key %q", ErrInvalidInput, k)
		}
		if len(v) > maxExtensionValLen {
			return fmt.Errorf("%w: extension %q value too long", ErrInvalidInput, k)
		}
	}
	return nil
}
