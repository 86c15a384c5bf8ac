package serial

import "fmt"

func openTerm(cfg *Config) (Port, error) {
	return nil, fmt.Errorf("term backend is not available on windows; use tarm")
}
