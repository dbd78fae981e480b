package conversation

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource records every pull so tests can check the source is never
// asked for more than it has.
type countingSource struct {
	fragments []string
	pulls     int
}

func (c *countingSource) Next(ctx context.Context) (string, error) {
	c.pulls++
	if c.pulls > len(c.fragments)+1 {
		return "", errors.New("source pulled after io.EOF")
	}
	if c.pulls == len(c.fragments)+1 {
		return "", io.EOF
	}
	return c.fragments[c.pulls-1], nil
}

func drain(t *testing.T, f *Fragments) []string {
	t.Helper()
	var ret []string
	for fragment, err := range f.Seq(context.Background()) {
		require.NoError(t, err)
		ret = append(ret, fragment)
	}
	return ret
}

func TestRootScenario(t *testing.T) {
	ctx := context.Background()
	root := NewRoot("What is my name?", FromStrings("You ", "are ", "anonymous."))

	assert.False(t, root.IsDone())
	assert.Equal(t, StreamPending, root.State())

	answer, err := root.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "You are anonymous.", answer)
	assert.True(t, root.IsDone())
	assert.Equal(t, StreamCompleted, root.State())
	assert.Equal(t, "[ Q: What is my name?, A: You are anonymous. ]", root.String())
}

func TestDriveYieldsFragmentsInOrder(t *testing.T) {
	root := NewRoot("q", FromStrings("You ", "are ", "anonymous."))
	assert.Equal(t, []string{"You ", "are ", "anonymous."}, drain(t, root.Drive()))
}

func TestAskIsLazy(t *testing.T) {
	root := NewRoot("q", FromStrings("a"))
	source := &countingSource{fragments: []string{"No ", "login."}}

	child := root.Ask("What makes it anonymous?", source)
	assert.Equal(t, 0, source.pulls)
	assert.Same(t, root, child.Parent())
	assert.False(t, child.IsDone())
	assert.False(t, root.IsDone())
}

func TestAskWithDefersGenerator(t *testing.T) {
	ctx := context.Background()
	root := NewRoot("What is my name?", FromStrings("You are anonymous."))
	_, err := root.AwaitAnswer(ctx)
	require.NoError(t, err)

	calls := 0
	var prompt []Record
	child := root.AskWith("Why?", GeneratorFunc(func(_ context.Context, p []Record) (FragmentSource, error) {
		calls++
		prompt = p
		return FromStrings("No ", "login."), nil
	}))
	assert.Equal(t, 0, calls)

	answer, err := child.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No login.", answer)
	assert.Equal(t, 1, calls)

	require.Len(t, prompt, 3)
	assert.Equal(t, "What is my name?", prompt[0].Text)
	assert.Equal(t, "You are anonymous.", prompt[1].Text)
	assert.Equal(t, Record{NodeID: child.ID, Role: RoleUser, Text: "Why?", Distance: 0, Complete: true}, prompt[2])

	_, err = child.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAskWithAnswersPendingAncestorsFirst(t *testing.T) {
	ctx := context.Background()
	rootSource := &countingSource{fragments: []string{"You ", "are ", "anonymous."}}
	root := NewRoot("What is my name?", rootSource)
	middle := root.Ask("Sure?", FromStrings("Yes."))

	var prompt []Record
	child := middle.AskWith("Why?", GeneratorFunc(func(_ context.Context, p []Record) (FragmentSource, error) {
		prompt = p
		return FromStrings("No login."), nil
	}))
	assert.Equal(t, 0, rootSource.pulls)

	answer, err := child.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No login.", answer)
	assert.True(t, root.IsDone())
	assert.True(t, middle.IsDone())

	require.Len(t, prompt, 5)
	assert.Equal(t, "You are anonymous.", prompt[1].Text)
	assert.True(t, prompt[1].Complete)
	assert.Equal(t, "Yes.", prompt[3].Text)
	assert.True(t, prompt[3].Complete)
	assert.Equal(t, "Why?", prompt[4].Text)
}

func TestAskWithAncestorFailureKeepsChildPending(t *testing.T) {
	calls := 0
	root := NewRoot("q", SourceFunc(func(context.Context) (string, error) {
		return "", errors.New("root backend down")
	}))
	child := root.AskWith("q2", GeneratorFunc(func(context.Context, []Record) (FragmentSource, error) {
		calls++
		return FromStrings("a2"), nil
	}))

	_, err := child.AwaitAnswer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root backend down")
	assert.Equal(t, 0, calls)
	assert.False(t, child.IsDone())
	assert.False(t, root.IsDone())
}

func TestGeneratorErrorLeavesNodePending(t *testing.T) {
	failing := GeneratorFunc(func(context.Context, []Record) (FragmentSource, error) {
		return nil, errors.New("backend down")
	})
	root := NewRootWith("q", failing)

	_, err := root.AwaitAnswer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.False(t, root.IsDone())
}

func TestLazySingularity(t *testing.T) {
	ctx := context.Background()
	source := &countingSource{fragments: []string{"You ", "are ", "anonymous."}}
	root := NewRoot("q", source)

	first := drain(t, root.Drive())
	pulls := source.pulls
	assert.Equal(t, 4, pulls)

	second := drain(t, root.Drive())
	assert.Equal(t, []string{"You are anonymous."}, second)
	assert.Equal(t, []string{"You ", "are ", "anonymous."}, first)
	assert.Equal(t, pulls, source.pulls)

	for i := 0; i < 3; i++ {
		answer, err := root.AwaitAnswer(ctx)
		require.NoError(t, err)
		assert.Equal(t, "You are anonymous.", answer)
	}
	assert.Equal(t, pulls, source.pulls)
	assert.Equal(t, pulls, root.Stream().Pulls())
}

func TestPartialResume(t *testing.T) {
	ctx := context.Background()
	fragments := []string{"a", "b", "c", "d", "e"}
	root := NewRoot("q", FromStrings(fragments...))

	first := root.Drive()
	for i := 0; i < 2; i++ {
		fragment, err := first.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, fragments[i], fragment)
	}
	assert.Equal(t, StreamPending, root.State())
	assert.Equal(t, "ab", root.Partial())
	_, ok := root.Answer()
	assert.False(t, ok)

	resumed := root.Resume()
	assert.Equal(t, []string{"c", "d", "e"}, drain(t, resumed))
	answer, ok := root.Answer()
	require.True(t, ok)
	assert.Equal(t, "abcde", answer)

	// the abandoned cursor catches up with what it has not seen yet
	assert.Equal(t, []string{"cde"}, drain(t, first))
}

func TestFreshCursorReplaysBacklogThenContinues(t *testing.T) {
	ctx := context.Background()
	root := NewRoot("q", FromStrings("a", "b", "c"))

	f := root.Drive()
	_, err := f.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, drain(t, root.Drive()))
	assert.Equal(t, []string{"bc"}, drain(t, f))
}

func TestEmptyFragmentsAreSkipped(t *testing.T) {
	root := NewRoot("q", FromStrings("", "a", "", "", "b", ""))
	assert.Equal(t, []string{"a", "b"}, drain(t, root.Drive()))
	answer, ok := root.Answer()
	require.True(t, ok)
	assert.Equal(t, "ab", answer)
}

func TestNilSourceAnswersEmpty(t *testing.T) {
	root := NewRoot("q", nil)
	answer, err := root.AwaitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", answer)
	assert.True(t, root.IsDone())
	assert.Empty(t, drain(t, root.Drive()))
}

func TestSourceErrorKeepsPartialAndRetries(t *testing.T) {
	ctx := context.Background()
	pulls := 0
	source := SourceFunc(func(context.Context) (string, error) {
		pulls++
		switch pulls {
		case 1:
			return "a", nil
		case 2:
			return "", errors.New("connection reset")
		case 3:
			return "b", nil
		default:
			return "", io.EOF
		}
	})
	root := NewRoot("q", source)

	_, err := root.AwaitAnswer(ctx)
	require.Error(t, err)
	assert.Equal(t, "a", root.Partial())
	assert.False(t, root.IsDone())

	answer, err := root.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ab", answer)
}

func TestCancelledContextStopsDrive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRoot("q", FromStrings("a"))
	_, err := root.Drive().Next(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StreamPending, root.State())

	answer, err := root.AwaitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", answer)
}

func TestConcurrentPullIsRejected(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	pulls := 0
	source := SourceFunc(func(context.Context) (string, error) {
		pulls++
		if pulls == 1 {
			close(entered)
			<-release
			return "slow", nil
		}
		return "", io.EOF
	})
	root := NewRoot("q", source)

	var wg sync.WaitGroup
	wg.Add(1)
	var first string
	var firstErr error
	go func() {
		defer wg.Done()
		first, firstErr = root.Drive().Next(ctx)
	}()

	<-entered
	_, err := root.Drive().Next(ctx)
	assert.True(t, errors.Is(err, ErrStreamBusy))

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, "slow", first)

	answer, err := root.AwaitAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "slow", answer)
	assert.Equal(t, 2, pulls)
}

type recordingObserver struct {
	fragments []string
	answers   []string
}

func (r *recordingObserver) OnFragment(_ *Node, fragment string, _ string) {
	r.fragments = append(r.fragments, fragment)
}

func (r *recordingObserver) OnComplete(_ *Node, answer string) {
	r.answers = append(r.answers, answer)
}

func TestObserversAreInheritedAndNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	o := &recordingObserver{}
	root := NewRoot("q1", FromStrings("a", "b"), WithObserver(o))
	child := root.Ask("q2", FromStrings("c"))

	_, err := root.AwaitAnswer(ctx)
	require.NoError(t, err)
	_, err = root.AwaitAnswer(ctx)
	require.NoError(t, err)
	_, err = child.AwaitAnswer(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, o.fragments)
	assert.Equal(t, []string{"ab", "c"}, o.answers)
}

func TestSourceExhaustedAfterEOF(t *testing.T) {
	ctx := context.Background()
	source := FromStrings("a")

	fragment, err := source.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", fragment)

	_, err = source.Next(ctx)
	assert.Equal(t, io.EOF, err)

	_, err = source.Next(ctx)
	assert.True(t, errors.Is(err, ErrSourceExhausted))
}

func TestExhaustGuard(t *testing.T) {
	ctx := context.Background()
	g := &exhaustGuard{source: SourceFunc(func(context.Context) (string, error) {
		return "", io.EOF
	})}

	_, err := g.Next(ctx)
	assert.Equal(t, io.EOF, err)
	_, err = g.Next(ctx)
	assert.True(t, errors.Is(err, ErrSourceExhausted))
}

func TestFromTextSplitsRunes(t *testing.T) {
	root := NewRoot("q", FromText("héllo"))
	assert.Equal(t, []string{"h", "é", "l", "l", "o"}, drain(t, root.Drive()))
}
