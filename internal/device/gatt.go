package device

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ayusman/myomod/internal/telemetry"
)

// GATT identifiers of the MyoMod telemetry service. Gateways publish each
// characteristic's notifications under its UUID.
var (
	ServiceUUID = uuid.MustParse("6e400001-7a3c-4b5f-9d2e-4d796f4d6f64")

	HandPoseCharacteristic    = uuid.MustParse("6e400002-7a3c-4b5f-9d2e-4d796f4d6f64")
	RawEMGCharacteristic      = uuid.MustParse("6e400003-7a3c-4b5f-9d2e-4d796f4d6f64")
	FilteredEMGCharacteristic = uuid.MustParse("6e400004-7a3c-4b5f-9d2e-4d796f4d6f64")
)

var characteristics = map[telemetry.Kind]uuid.UUID{
	telemetry.KindHandPose:    HandPoseCharacteristic,
	telemetry.KindRawEMG:      RawEMGCharacteristic,
	telemetry.KindFilteredEMG: FilteredEMGCharacteristic,
}

// CharacteristicFor returns the characteristic that carries stream k.
func CharacteristicFor(k telemetry.Kind) (uuid.UUID, error) {
	u, ok := characteristics[k]
	if !ok {
		return uuid.Nil, fmt.Errorf("device: no characteristic for %s", k)
	}
	return u, nil
}

// KindForCharacteristic returns the stream carried by characteristic u.
func KindForCharacteristic(u uuid.UUID) (telemetry.Kind, bool) {
	for k, c := range characteristics {
		if c == u {
			return k, true
		}
	}
	return 0, false
}
