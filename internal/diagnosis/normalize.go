package diagnosis

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"opinionbot/internal/domain"

	"github.com/tidwall/gjson"
)

const fence = "```"

// Accepted spellings per field, canonical name first.
var (
	biasKeys     = []string{"biasScore", "bias_score"}
	strengthKeys = []string{"strengthScore", "strength_score"}
	commentKeys  = []string{"comment", "commentary"}
	contentKeys  = []string{"content"}
	similarKeys  = []string{"similarOpinion", "similar_opinion"}
	oppositeKeys = []string{"oppositeOpinion", "opposite_opinion"}
)

var (
	errWrongType   = errors.New("wrong type")
	errEmptyText   = errors.New("empty text")
	errBadEncoding = errors.New("text is not valid UTF-8")
	errNotAnObject = errors.New("not a JSON object")
)

// Normalized holds the result of one Normalize call: Record for ModeFull,
// Opinion for the regenerate modes.
type Normalized struct {
	Record  *domain.DiagnosisRecord
	Opinion *domain.Opinion
}

func Normalize(raw string, mode domain.Mode) (Normalized, error) {
	switch mode {
	case domain.ModeFull:
		rec, err := NormalizeDiagnosis(raw)
		if err != nil {
			return Normalized{}, err
		}
		return Normalized{Record: &rec}, nil
	case domain.ModeRegenSimilar, domain.ModeRegenOpposite:
		op, err := NormalizeOpinion(raw, mode)
		if err != nil {
			return Normalized{}, err
		}
		return Normalized{Opinion: &op}, nil
	}
	return Normalized{}, fmt.Errorf("normalize: unsupported mode %s", mode)
}

func NormalizeDiagnosis(raw string) (domain.DiagnosisRecord, error) {
	root, stripped, err := parseObject(raw)
	if err != nil {
		return domain.DiagnosisRecord{}, err
	}
	v := validator{raw: raw, stripped: stripped}

	var rec domain.DiagnosisRecord
	if rec.BiasScore, err = v.bias(root, "", biasKeys); err != nil {
		return domain.DiagnosisRecord{}, err
	}
	if rec.StrengthScore, err = v.strength(root, "", strengthKeys); err != nil {
		return domain.DiagnosisRecord{}, err
	}
	if rec.Comment, err = v.text(root, "", commentKeys); err != nil {
		return domain.DiagnosisRecord{}, err
	}
	if rec.SimilarOpinion, err = v.optionalOpinion(root, similarKeys); err != nil {
		return domain.DiagnosisRecord{}, err
	}
	if rec.OppositeOpinion, err = v.optionalOpinion(root, oppositeKeys); err != nil {
		return domain.DiagnosisRecord{}, err
	}
	return rec, nil
}

func NormalizeOpinion(raw string, mode domain.Mode) (domain.Opinion, error) {
	var keys []string
	switch mode {
	case domain.ModeRegenSimilar:
		keys = similarKeys
	case domain.ModeRegenOpposite:
		keys = oppositeKeys
	default:
		return domain.Opinion{}, fmt.Errorf("normalize opinion: unsupported mode %s", mode)
	}

	root, stripped, err := parseObject(raw)
	if err != nil {
		return domain.Opinion{}, err
	}
	v := validator{raw: raw, stripped: stripped}

	name, val := lookup(root, keys)
	if !val.Exists() || val.Type == gjson.Null {
		return domain.Opinion{}, v.violation(name, val, nil)
	}
	return v.opinion(name, val)
}

// StripFence removes a leading ``` fence, its optional language tag and the
// closing fence. Text after the closing fence is dropped; a missing closing
// fence keeps everything after the opening one.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fence) {
		return text
	}
	body := text[len(fence):]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	body = strings.TrimLeft(body, " \t")
	tagEnd := 0
	for tagEnd < len(body) && isTagByte(body[tagEnd]) {
		tagEnd++
	}
	body = body[tagEnd:]
	return strings.TrimSpace(body)
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '+'
}

func parseObject(raw string) (gjson.Result, string, error) {
	stripped := StripFence(raw)
	if !gjson.Valid(stripped) {
		return gjson.Result{}, stripped, &NormalizationError{
			Kind:         MalformedPayload,
			RawText:      raw,
			StrippedText: stripped,
		}
	}
	root := gjson.Parse(stripped)
	if !root.IsObject() {
		return gjson.Result{}, stripped, &NormalizationError{
			Kind:         SchemaViolation,
			Field:        "$",
			Value:        root.Raw,
			RawText:      raw,
			StrippedText: stripped,
			Err:          errNotAnObject,
		}
	}
	return root, stripped, nil
}

// lookup returns the first alias present on obj, or the canonical name when
// none is.
func lookup(obj gjson.Result, keys []string) (string, gjson.Result) {
	for _, k := range keys {
		if r := obj.Get(k); r.Exists() {
			return keys[0], r
		}
	}
	return keys[0], gjson.Result{}
}

type validator struct {
	raw      string
	stripped string
}

func (v validator) violation(field string, val gjson.Result, err error) *NormalizationError {
	return &NormalizationError{
		Kind:         SchemaViolation,
		Field:        field,
		Value:        val.Raw,
		RawText:      v.raw,
		StrippedText: v.stripped,
		Err:          err,
	}
}

func (v validator) number(obj gjson.Result, prefix string, keys []string) (string, float64, error) {
	name, val := lookup(obj, keys)
	field := prefix + name
	if !val.Exists() {
		return field, 0, v.violation(field, val, nil)
	}
	if val.Type != gjson.Number {
		return field, 0, v.violation(field, val, errWrongType)
	}
	return field, val.Float(), nil
}

func (v validator) bias(obj gjson.Result, prefix string, keys []string) (float64, error) {
	field, f, err := v.number(obj, prefix, keys)
	if err != nil {
		return 0, err
	}
	if rangeErr := domain.ValidateBias(field, f); rangeErr != nil {
		_, val := lookup(obj, keys)
		return 0, v.violation(field, val, rangeErr)
	}
	return f, nil
}

func (v validator) strength(obj gjson.Result, prefix string, keys []string) (float64, error) {
	field, f, err := v.number(obj, prefix, keys)
	if err != nil {
		return 0, err
	}
	if rangeErr := domain.ValidateStrength(field, f); rangeErr != nil {
		_, val := lookup(obj, keys)
		return 0, v.violation(field, val, rangeErr)
	}
	return f, nil
}

func (v validator) text(obj gjson.Result, prefix string, keys []string) (string, error) {
	name, val := lookup(obj, keys)
	field := prefix + name
	if !val.Exists() {
		return "", v.violation(field, val, nil)
	}
	if val.Type != gjson.String {
		return "", v.violation(field, val, errWrongType)
	}
	s := strings.TrimSpace(val.String())
	if s == "" {
		return "", v.violation(field, val, errEmptyText)
	}
	// gjson decodes a lone surrogate escape to U+FFFD.
	if !utf8.ValidString(s) || strings.ContainsRune(s, utf8.RuneError) {
		return "", v.violation(field, val, errBadEncoding)
	}
	return s, nil
}

// optionalOpinion treats an absent key and an explicit null the same way.
func (v validator) optionalOpinion(root gjson.Result, keys []string) (*domain.Opinion, error) {
	name, val := lookup(root, keys)
	if !val.Exists() || val.Type == gjson.Null {
		return nil, nil
	}
	op, err := v.opinion(name, val)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (v validator) opinion(name string, val gjson.Result) (domain.Opinion, error) {
	if !val.IsObject() {
		return domain.Opinion{}, v.violation(name, val, errNotAnObject)
	}
	prefix := name + "."
	var (
		op  domain.Opinion
		err error
	)
	if op.Content, err = v.text(val, prefix, contentKeys); err != nil {
		return domain.Opinion{}, err
	}
	if op.BiasScore, err = v.bias(val, prefix, biasKeys); err != nil {
		return domain.Opinion{}, err
	}
	if op.StrengthScore, err = v.strength(val, prefix, strengthKeys); err != nil {
		return domain.Opinion{}, err
	}
	return op, nil
}
