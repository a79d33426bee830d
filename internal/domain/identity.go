package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseFID returns the Farcaster id a participant id refers to. Both "123"
// and "fid:123" are accepted.
func ParseFID(participantID string) (uint64, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(participantID), "fid:")
	fid, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || fid == 0 {
		return 0, fmt.Errorf("%w: %q is not a farcaster id", ErrInvalidParticipant, participantID)
	}
	return fid, nil
}

// NormalizeParticipantID returns the canonical "fid:N" form.
func NormalizeParticipantID(participantID string) (string, error) {
	fid, err := ParseFID(participantID)
	if err != nil {
		return "", err
	}
	return "fid:" + strconv.FormatUint(fid, 10), nil
}

func ValidatePayoutAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}
