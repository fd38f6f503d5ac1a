package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueries(t *testing.T) {
	t.Parallel()

	names := []string{"Ada Lovelace", "Ada King"}

	all := buildQueries(names, "", 0)
	assert.Len(t, all, len(queryTemplates)*len(names))
	assert.Equal(t, `"Ada Lovelace" interview`, all[0])
	assert.Equal(t, `"Ada King" interview`, all[1])

	capped := buildQueries(names, "", 3)
	assert.Equal(t, []string{`"Ada Lovelace" interview`, `"Ada King" interview`, `"Ada Lovelace" biography`}, capped)

	assert.Len(t, buildQueries(names, "", 1), 1, "cap holds inside the first template")

	windowed := buildQueries(names[:1], "since 2020", 2)
	assert.Equal(t, []string{`"Ada Lovelace" interview since 2020`, `"Ada Lovelace" biography since 2020`}, windowed)
}
