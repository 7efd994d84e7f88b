package domain

import (
	"encoding/json"
	"unicode/utf8"

	"thoth/pkg/codec"

	"github.com/pkg/errors"
)

const (
	KeyOperatingSystem    = "operatingSystem"
	KeyJavaVirtualMachine = "javaVirtualMachine"
)

type OperatingSystem struct {
	Name         string `json:"name" validate:"required,max=64"`
	Version      string `json:"version" validate:"required,max=32"`
	Architecture string `json:"architecture" validate:"required,max=12"`
}

type JavaVirtualMachine struct {
	Name    string `json:"name" validate:"required,max=64"`
	Version string `json:"version" validate:"required,max=32"`
	Vendor  string `json:"vendor" validate:"required,max=32"`
}

// Environment serializes as one flat object: the predefined keys next to
// every custom metadata key.
type Environment struct {
	OperatingSystem    OperatingSystem        `json:"operatingSystem"`
	JavaVirtualMachine *JavaVirtualMachine    `json:"javaVirtualMachine" validate:"omitempty"`
	Custom             map[string]codec.Value `json:"-"`
}

func IsPredefinedKey(key string) bool {
	return key == KeyOperatingSystem || key == KeyJavaVirtualMachine
}

func (e Environment) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Custom)+2)
	for k, v := range e.Custom {
		if IsPredefinedKey(k) {
			continue
		}
		out[k] = v
	}
	out[KeyOperatingSystem] = e.OperatingSystem
	if e.JavaVirtualMachine != nil {
		out[KeyJavaVirtualMachine] = e.JavaVirtualMachine
	}
	return json.Marshal(out)
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	env := Environment{Custom: make(map[string]codec.Value)}
	for k, raw := range fields {
		switch k {
		case KeyOperatingSystem:
			if err := json.Unmarshal(raw, &env.OperatingSystem); err != nil {
				return errors.Wrap(err, k)
			}
		case KeyJavaVirtualMachine:
			if string(raw) == "null" {
				continue
			}
			var jvm JavaVirtualMachine
			if err := json.Unmarshal(raw, &jvm); err != nil {
				return errors.Wrap(err, k)
			}
			env.JavaVirtualMachine = &jvm
		default:
			var v codec.Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return errors.Wrapf(err, "environment.%s", k)
			}
			env.Custom[k] = v
		}
	}
	*e = env
	return nil
}

// ValidateCustom checks the open-ended part of the environment, which the
// struct tags cannot describe.
func (e Environment) ValidateCustom() error {
	for k, v := range e.Custom {
		if IsPredefinedKey(k) {
			return errors.Errorf("environment.%s is reserved", k)
		}
		if k == "" || utf8.RuneCountInString(k) > MaxCustomKeyLen {
			return errors.Errorf("environment key %q must be 1-%d characters", k, MaxCustomKeyLen)
		}
		if v.Len() > MaxArrayLength {
			return errors.Errorf("environment.%s has %d entries, max %d", k, v.Len(), MaxArrayLength)
		}
	}
	return nil
}
