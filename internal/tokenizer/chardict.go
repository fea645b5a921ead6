package tokenizer

import (
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// CharDict is a character-level dictionary tokenizer. Every rune seen at
// least minCount times in the corpus gets its own id; everything else
// encodes to the unk id.
type CharDict struct {
	uncased  bool
	idToRune []rune
	runeToID map[rune]int
}

// BuildCharDict builds the vocabulary from a corpus. Runes are ordered by
// descending frequency, ties broken by first appearance, which keeps ids
// stable for a fixed corpus. Runes below minCount are left out and encode
// to unk.
func BuildCharDict(texts []string, minCount int, uncased bool) *CharDict {
	if minCount < 1 {
		minCount = 1
	}
	counts := map[rune]int{}
	var order []rune
	for _, text := range texts {
		if uncased {
			text = strings.ToLower(text)
		}
		for _, r := range text {
			if counts[r] == 0 {
				order = append(order, r)
			}
			counts[r]++
		}
	}

	// Stable selection sort on (count desc, first-seen asc). Vocabularies
	// are small enough that this beats pulling in a comparator dance.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	d := &CharDict{uncased: uncased, runeToID: map[rune]int{}}
	for _, r := range order {
		if counts[r] < minCount {
			continue
		}
		d.runeToID[r] = numSpecial + len(d.idToRune)
		d.idToRune = append(d.idToRune, r)
	}
	return d
}

func (d *CharDict) Encode(text string) ([]int, error) {
	if d.uncased {
		text = strings.ToLower(text)
	}
	ids := []int{BosID}
	for _, r := range text {
		id, ok := d.runeToID[r]
		if !ok {
			id = UnkID
		}
		ids = append(ids, id)
	}
	if len(ids) == 1 {
		return nil, ErrEmptyInput
	}
	return append(ids, EosID), nil
}

func (d *CharDict) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= d.VocabSize() {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		if id < numSpecial {
			continue
		}
		b.WriteRune(d.idToRune[id-numSpecial])
	}
	return b.String(), nil
}

func (d *CharDict) PadID() int     { return PadID }
func (d *CharDict) BosID() int     { return BosID }
func (d *CharDict) EosID() int     { return EosID }
func (d *CharDict) UnkID() int     { return UnkID }
func (d *CharDict) VocabSize() int { return numSpecial + len(d.idToRune) }

type charDictFile struct {
	Uncased bool   `json:"uncased"`
	Vocab   string `json:"vocab"`
}

// Save writes the vocabulary as JSON.
func (d *CharDict) Save(path string) error {
	data, err := json.Marshal(charDictFile{
		Uncased: d.uncased,
		Vocab:   string(d.idToRune),
	})
	if err != nil {
		return fmt.Errorf("marshal tokenizer: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadCharDict reads a vocabulary written by Save.
func LoadCharDict(path string) (*CharDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f charDictFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tokenizer file: %w", err)
	}
	d := &CharDict{uncased: f.Uncased, runeToID: map[rune]int{}}
	for _, r := range f.Vocab {
		if _, dup := d.runeToID[r]; dup {
			return nil, fmt.Errorf("duplicate rune %q in tokenizer file", r)
		}
		d.runeToID[r] = numSpecial + len(d.idToRune)
		d.idToRune = append(d.idToRune, r)
	}
	return d, nil
}
