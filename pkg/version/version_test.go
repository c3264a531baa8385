package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull_JoinsAppNameAndCommit(t *testing.T) {
	full := Full()

	assert.True(t, strings.HasPrefix(full, AppName+"/"))
	assert.Equal(t, AppName+"/"+GitCommit, full)
}

func TestGitCommit_FallsBackToDevUnderGoTest(t *testing.T) {
	// `go test` builds carry no vcs.revision setting, so initGitCommit
	// returns "dev" in this environment.
	assert.Equal(t, "dev", GitCommit)
}
