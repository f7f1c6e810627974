package domain

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidNeuronID is returned for empty or sentinel identifiers such as "NotAssigned".
var ErrInvalidNeuronID = errors.New("invalid neuron identifier")

// NeuronID is an opaque body/root identifier. IDs from different spaces must never be
// combined arithmetically; they are only compared or used as lookup keys.
type NeuronID int64

func (id NeuronID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Valid reports whether the identifier can be used for a query.
func (id NeuronID) Valid() bool {
	return id > 0
}

// Space identifies the dataset an identifier belongs to.
type Space string

const (
	// SpaceFANC identifies CAVE root IDs (source A).
	SpaceFANC Space = "fanc"
	// SpaceMANC identifies neuPrint body IDs (source B).
	SpaceMANC Space = "manc"

	fancMinDigits = 13
)

// SpaceOf applies the digit-length heuristic: identifiers longer than 12 digits are CAVE roots.
func SpaceOf(id NeuronID) Space {
	if len(id.String()) >= fancMinDigits {
		return SpaceFANC
	}
	return SpaceMANC
}

var sentinelIDs = map[string]struct{}{
	"":            {},
	"notassigned": {},
	"nan":         {},
	"none":        {},
	"null":        {},
}

// ParseNeuronID parses a decimal identifier, rejecting sentinels and non-positive values.
func ParseNeuronID(raw string) (NeuronID, error) {
	value := strings.TrimSpace(raw)
	if _, ok := sentinelIDs[strings.ToLower(value)]; ok {
		return 0, ErrInvalidNeuronID
	}
	// pandas writes integer columns containing NaN as floats
	value = strings.TrimSuffix(value, ".0")
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidNeuronID
	}
	return NeuronID(n), nil
}

// ParseNeuronIDs parses every element, failing on the first invalid entry.
func ParseNeuronIDs(raw []string) ([]NeuronID, error) {
	ids := make([]NeuronID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseNeuronID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Unknown is the sentinel returned for annotations that are missing.
const Unknown = "unknown"

// NeuronInfo carries the annotations used for labelling and colouring neurons.
type NeuronInfo struct {
	ID               NeuronID
	Type             string
	Side             string
	Neurotransmitter string
}

// UnknownNeuron returns an info record with every annotation set to Unknown.
func UnknownNeuron(id NeuronID) NeuronInfo {
	return NeuronInfo{ID: id, Type: Unknown, Side: Unknown, Neurotransmitter: Unknown}
}
