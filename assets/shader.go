package assets

import (
	"os"

	"github.com/cockroachdb/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic = 0x07230203

// BytesToBytecode reinterprets little-endian SPIR-V bytes as words.
func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteIndex := i * 4
		byteCode[i] = uint32(b[byteIndex]) |
			uint32(b[byteIndex+1])<<8 |
			uint32(b[byteIndex+2])<<16 |
			uint32(b[byteIndex+3])<<24
	}
	return byteCode
}

// ParseShader validates compiled SPIR-V and returns its words.
func ParseShader(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("shader is %d bytes, not a whole number of words", len(b))
	}

	code := BytesToBytecode(b)
	if code[0] != SPIRVMagic {
		return nil, errors.Newf("shader starts with %#08x, not the SPIR-V magic number", code[0])
	}
	return code, nil
}

func LoadShader(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}

	code, err := ParseShader(b)
	if err != nil {
		return nil, errors.Wrapf(err, "loading shader %s", path)
	}
	return code, nil
}
