package model

// Language maps a symbolic language name to the numeric id the external
// judge expects. The set is small and fixed; it is not stored in the
// database.
type Language struct {
	Name    string `json:"name"`
	JudgeID int    `json:"judge_id"`
}

var languages = map[string]Language{
	"cpp":        {Name: "cpp", JudgeID: 54},
	"java":       {Name: "java", JudgeID: 62},
	"python":     {Name: "python", JudgeID: 71},
	"javascript": {Name: "javascript", JudgeID: 63},
	"go":         {Name: "go", JudgeID: 60},
}

// LanguageByName returns the language for a symbolic name, or false if the
// name is not supported.
func LanguageByName(name string) (Language, bool) {
	lang, ok := languages[name]
	return lang, ok
}

func SupportedLanguages() []Language {
	out := make([]Language, 0, len(languages))
	for _, l := range languages {
		out = append(out, l)
	}
	return out
}
