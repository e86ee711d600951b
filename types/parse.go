package types

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParseChainConfig parses and validates a network-configuration document.
func ParseChainConfig(data []byte) (*ChainConfig, error) {
	var cfg ChainConfig

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &BridgeError{
			Code:    ErrInvalidConfig,
			Message: fmt.Sprintf("failed to parse chain config: %v", err),
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, &BridgeError{
			Code:    ErrInvalidConfig,
			Message: fmt.Sprintf("chain config validation failed: %v", err),
		}
	}

	return &cfg, nil
}
