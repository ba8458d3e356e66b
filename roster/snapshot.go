package roster

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ImportSnapshot loads a JSON roster snapshot (an array of member objects,
// the format the membership list is distributed in) and bulk-writes it into
// the store. Returns the number of records imported.
func (s *Store) ImportSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("roster: read snapshot %s: %w", path, err)
	}
	var members []Member
	if err := json.Unmarshal(data, &members); err != nil {
		return 0, fmt.Errorf("roster: parse snapshot %s: %w", path, err)
	}
	if err := s.PutBatch(members); err != nil {
		return 0, err
	}
	return len(members), nil
}
