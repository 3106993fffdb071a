package assets

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed vocab.json distractors.txt
var FS embed.FS

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// VocabJSON returns the embedded default vocabulary as raw JSON.
func VocabJSON() ([]byte, error) {
	return FS.ReadFile("vocab.json")
}

// DistractorList returns the embedded static distractor pool.
func DistractorList() ([]string, error) {
	return readLines("distractors.txt")
}
