package payload

import (
	"math/rand/v2"
	"net/url"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formsurge/internal/formschema"
	"github.com/xkilldash9x/formsurge/internal/synth"
)

func newTestBuilder() *Builder {
	return NewBuilder(synth.New(rand.NewPCG(7, 11)))
}

func fullSchema() *formschema.Schema {
	return &formschema.Schema{
		SubmissionTarget:  "https://docs.google.com/forms/d/e/abc/formResponse",
		AntiSpamToken:     "-991",
		PageSequenceToken: "0",
		Questions: []formschema.Question{
			{FieldID: "entry.1", Kind: formschema.KindSingleChoice, Options: []string{"A", "B"}},
			{FieldID: "entry.2", Kind: formschema.KindMultiChoice, Options: []string{"w", "x", "y", "z"}},
			{FieldID: "entry.3", Kind: formschema.KindDropdown, Options: []string{"Opt"}},
			{FieldID: "entry.4", Kind: formschema.KindShortText},
			{FieldID: "entry.5", Kind: formschema.KindLongText},
			{FieldID: "entry.6", Kind: formschema.KindLinearScale, Options: []string{"1", "2", "3"}},
			{FieldID: "entry.7", Kind: formschema.KindDate},
			{FieldID: "entry.8", Kind: formschema.KindTime},
		},
	}
}

func TestBuild_TokensComeFirst(t *testing.T) {
	p := newTestBuilder().Build(fullSchema())
	require.GreaterOrEqual(t, p.Len(), 2)
	assert.Equal(t, Pair{Key: "fbzx", Value: "-991"}, p[0])
	assert.Equal(t, Pair{Key: "pageHistory", Value: "0"}, p[1])
}

func TestBuild_OmitsEmptyPageSequenceToken(t *testing.T) {
	schema := fullSchema()
	schema.PageSequenceToken = ""
	p := newTestBuilder().Build(schema)
	assert.Zero(t, p.Count(PageSequenceKey))
	assert.Equal(t, "entry.1", p[1].Key)
}

func TestBuild_FollowsQuestionOrder(t *testing.T) {
	p := newTestBuilder().Build(fullSchema())

	var order []string
	for _, k := range p.Keys()[2:] {
		if len(order) == 0 || order[len(order)-1] != k {
			order = append(order, k)
		}
	}
	assert.Equal(t, []string{"entry.1", "entry.2", "entry.3", "entry.4", "entry.5", "entry.6", "entry.7", "entry.8"}, order)
}

func TestBuild_MultiChoiceRepeatsKey(t *testing.T) {
	b := newTestBuilder()
	schema := fullSchema()
	for i := 0; i < 500; i++ {
		p := b.Build(schema)
		k := p.Count("entry.2")
		require.True(t, k >= 1 && k <= 2, "got %d pairs", k)
		for _, pair := range p {
			if pair.Key == "entry.2" {
				require.Contains(t, schema.Questions[1].Options, pair.Value)
			}
		}
		assert.Equal(t, 1, p.Count("entry.1"))
	}
}

func TestBuild_EmptyOptionChoicesAreOmitted(t *testing.T) {
	// Whether the endpoint accepts a missing required answer is unverified, so
	// the builder only promises the key is absent.
	schema := fullSchema()
	schema.Questions = []formschema.Question{
		{FieldID: "entry.1", Kind: formschema.KindSingleChoice},
		{FieldID: "entry.2", Kind: formschema.KindMultiChoice, Options: []string{}},
		{FieldID: "entry.3", Kind: formschema.KindDropdown},
		{FieldID: "entry.6", Kind: formschema.KindLinearScale},
		{FieldID: "entry.4", Kind: formschema.KindShortText},
	}

	p := newTestBuilder().Build(schema)
	for _, key := range []string{"entry.1", "entry.2", "entry.3", "entry.6"} {
		assert.Zero(t, p.Count(key), key)
	}
	assert.Equal(t, 1, p.Count("entry.4"))
	assert.Equal(t, 3, p.Len())
}

func TestBuild_FreshPayloadEachCall(t *testing.T) {
	b := newTestBuilder()
	schema := fullSchema()
	first := b.Build(schema)
	snapshot := append(Payload(nil), first...)
	_ = b.Build(schema)
	assert.Equal(t, snapshot, first)
}

func TestEncode(t *testing.T) {
	p := Payload{
		{Key: "fbzx", Value: "-1"},
		{Key: "entry.2", Value: "a b"},
		{Key: "entry.1", Value: "x&y"},
		{Key: "entry.2", Value: "c"},
	}
	assert.Equal(t, "fbzx=-1&entry.2=a+b&entry.1=x%26y&entry.2=c", p.Encode())

	parsed, err := url.ParseQuery(p.Encode())
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "c"}, parsed["entry.2"])
	assert.Equal(t, parsed, p.Values())

	assert.Empty(t, Payload{}.Encode())
}

func FuzzBuild(f *testing.F) {
	f.Add([]byte("seed-corpus-entry"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		token, err := c.GetString()
		if err != nil || token == "" {
			return
		}
		n, err := c.GetInt()
		if err != nil {
			return
		}

		schema := &formschema.Schema{
			SubmissionTarget: "https://example.org/formResponse",
			AntiSpamToken:    token,
		}
		kinds := formschema.AllKinds()
		for i := 0; i < n%16; i++ {
			kindIdx, err := c.GetInt()
			if err != nil {
				break
			}
			var options []string
			optCount, _ := c.GetInt()
			for j := 0; j < optCount%8; j++ {
				opt, err := c.GetString()
				if err != nil {
					break
				}
				options = append(options, opt)
			}
			schema.Questions = append(schema.Questions, formschema.Question{
				FieldID: "entry." + string(rune('a'+i)),
				Kind:    kinds[wrap(kindIdx, len(kinds))],
				Options: options,
			})
		}

		p := newTestBuilder().Build(schema)
		require.Equal(t, token, p[0].Value)

		parsed, err := url.ParseQuery(p.Encode())
		require.NoError(t, err)
		assert.Equal(t, []string{token}, parsed[AntiSpamKey])
	})
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}
