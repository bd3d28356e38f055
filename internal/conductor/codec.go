package conductor

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses core deterministic encoding so a zome call hashes to the
// same bytes on both ends of the socket.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any and ignores unknown fields.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("conductor: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("conductor: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v for the conductor wire.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes conductor wire bytes into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
