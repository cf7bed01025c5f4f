// Package words supplies puzzle words and checks guesses against them.
//
// Lists are read from one file per length ("5.txt" .. "9.txt", one word per line).
// The embedded lists are used unless a directory is configured. Entries are
// lowercased and anything that is not a-z or not of the file's length is dropped.
package words

import (
	"bufio"
	"crypto/rand"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"slices"
	"strings"
)

const (
	MinLength = 5
	MaxLength = 9
)

//go:embed wordlists/*.txt
var embedded embed.FS

// Supply is safe for concurrent use once built.
type Supply struct {
	byLength map[int][]string
	set      map[string]struct{}
	intn     func(n int) int
}

type Option func(*Supply)

// WithRand replaces the crypto/rand source, intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(s *Supply) {
		s.intn = intn
	}
}

// Embedded builds a supply from the lists compiled into the binary.
func Embedded(opts ...Option) (*Supply, error) {
	sub, err := fs.Sub(embedded, "wordlists")
	if err != nil {
		return nil, fmt.Errorf("words: %w", err)
	}

	return New(sub, opts...)
}

// Dir builds a supply from the lists in a directory.
func Dir(path string, opts ...Option) (*Supply, error) {
	return New(os.DirFS(path), opts...)
}

func New(fsys fs.FS, opts ...Option) (*Supply, error) {
	s := &Supply{
		byLength: make(map[int][]string),
		set:      make(map[string]struct{}),
		intn:     cryptoIntn,
	}

	for _, opt := range opts {
		opt(s)
	}

	for n := MinLength; n <= MaxLength; n++ {
		list, err := readList(fsys, fmt.Sprintf("%d.txt", n), n)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("words: %w", err)
		}

		s.byLength[n] = list
		for _, w := range list {
			s.set[w] = struct{}{}
		}
	}

	if len(s.set) == 0 {
		return nil, errors.New("words: no words loaded")
	}

	return s, nil
}

func readList(fsys fs.FS, name string, length int) ([]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := Normalize(sc.Text())
		if len(w) != length || !isAlpha(w) {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}

	return out, sc.Err()
}

// RandomWord returns a random word, clamping length into [MinLength, MaxLength].
func (s *Supply) RandomWord(length int) (string, error) {
	length = min(max(length, MinLength), MaxLength)

	list := s.byLength[length]
	if len(list) == 0 {
		return "", fmt.Errorf("words: no words of length %d", length)
	}

	return list[s.intn(len(list))], nil
}

// Shuffle returns a random permutation of word's letters, different from word
// whenever the letters allow it.
func (s *Supply) Shuffle(word string) string {
	letters := []rune(word)
	if !hasDistinct(letters) {
		return word
	}

	for {
		for i := len(letters) - 1; i > 0; i-- {
			j := s.intn(i + 1)
			letters[i], letters[j] = letters[j], letters[i]
		}
		if out := string(letters); out != word {
			return out
		}
	}
}

// IsWord reports whether w is in the dictionary.
func (s *Supply) IsWord(w string) bool {
	_, ok := s.set[Normalize(w)]
	return ok
}

// Validate reports whether guess is a dictionary word using exactly the anagram's letters.
func (s *Supply) Validate(anagram, guess string) bool {
	return s.IsWord(guess) && IsAnagram(anagram, guess)
}

// Anagrams lists every dictionary word made of exactly the given letters.
func (s *Supply) Anagrams(letters string) []string {
	key := sortedLetters(letters)

	var out []string
	for _, w := range s.byLength[len(key)] {
		if sortedLetters(w) == key {
			out = append(out, w)
		}
	}

	return out
}

// IsAnagram reports whether a and b use the same letters, ignoring case and whitespace.
func IsAnagram(a, b string) bool {
	return sortedLetters(a) == sortedLetters(b)
}

// Normalize trims and lowercases a guess.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// WellFormed reports whether a normalized guess is a non-empty run of a-z.
func WellFormed(s string) bool {
	return s != "" && isAlpha(s)
}

func sortedLetters(s string) string {
	r := []rune(strings.Join(strings.Fields(strings.ToLower(s)), ""))
	slices.Sort(r)
	return string(r)
}

func hasDistinct(r []rune) bool {
	for i := 1; i < len(r); i++ {
		if r[i] != r[0] {
			return true
		}
	}

	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}

	return true
}

func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("words: crypto/rand: %v", err))
	}

	return int(v.Int64())
}
