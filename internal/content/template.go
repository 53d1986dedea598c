package content

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"text/template"
)

var poemTemplates = []string{
	`Beneath a lamp of guttering flame I read
Of {{.First}}, long buried with the dead.
A chamber hung with {{.Second}} and with gloom,
And {{.Third}} breathing softly through the room.

Three secrets sleep where only one may tread,
And none shall wake them save by what was said.`,

	`Upon the bust there sits a bird of night
That croaks of {{.First}} in the failing light.
It knows of {{.Second}}, knows the name you keep,
And {{.Third}} lingers where the lost ones sleep.

Speak all three true, and let the door swing wide;
Speak one amiss, and stay the other side.`,

	`The clock has struck thirteen within the tower,
And {{.First}} rises at this hollow hour.
Through veils of {{.Second}} creeps a pallid glow,
While {{.Third}} guards what only few may know.`,
}

var crypticTemplates = []string{
	"The raven speaks of {{.First}} and {{.Second}}, yet {{.Third}} it keeps for those who listen at the chamber door.",
	"In the crypt of {{.First}} a bell still tolls. Follow {{.Second}} through the dark, and {{.Third}} will find you first.",
	"Three names are carved in the tomb: {{.First}}, {{.Second}}, {{.Third}}. Only one hand may read them all.",
	"The heart beneath the floor beats {{.First}}, then {{.Second}}, then {{.Third}}. Count the beats, mortal.",
	"A tapping at the door. Is it {{.First}}? Is it {{.Second}}? Or only {{.Third}}, and nothing more.",
}

// TemplateGenerator picks one of its templates deterministically from the
// inputs so the same answers always produce the same text.
type TemplateGenerator struct {
	templates []*template.Template
}

func NewTemplateGenerator(texts ...string) (*TemplateGenerator, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("at least one template is required")
	}

	g := &TemplateGenerator{}
	for i, text := range texts {
		tmpl, err := template.New(fmt.Sprintf("t%d", i)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse template %d: %w", i, err)
		}
		g.templates = append(g.templates, tmpl)
	}

	return g, nil
}

func mustTemplateGenerator(texts ...string) *TemplateGenerator {
	g, err := NewTemplateGenerator(texts...)
	if err != nil {
		panic(err)
	}
	return g
}

func NewPoemGenerator() *TemplateGenerator {
	return mustTemplateGenerator(poemTemplates...)
}

func NewCrypticGenerator() *TemplateGenerator {
	return mustTemplateGenerator(crypticTemplates...)
}

func (g *TemplateGenerator) pick(clues Clues) *template.Template {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(clues.slice(), "\x00")))
	return g.templates[h.Sum32()%uint32(len(g.templates))]
}

func (g *TemplateGenerator) Generate(_ context.Context, inputs []string) string {
	clues := CluesFrom(inputs)

	var buf bytes.Buffer
	if err := g.pick(clues).Execute(&buf, clues); err != nil || buf.Len() == 0 {
		return strings.Join(clues.slice(), ", ")
	}

	return buf.String()
}
