package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type memorySink struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (s *memorySink) Record(ctx context.Context, entry models.ActivityLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *memorySink) all() []models.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityLog(nil), s.entries...)
}

// blockingSink holds the drain goroutine inside Record until released.
type blockingSink struct {
	memorySink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Record(ctx context.Context, entry models.ActivityLog) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	s.memorySink.Record(ctx, entry)
}

func entry(id string) models.ActivityLog {
	return models.ActivityLog{Action: models.ActionCreate, Entity: "project", EntityID: id}
}

func TestStoreActivitySink(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	sink := NewStoreActivitySink(database.NewActivityLogRepo(store))
	ctx := context.Background()

	sink.Record(ctx, entry("a"))
	raws, err := store.Collection(database.ActivityLogCollection).Find(ctx, docstore.Filter{}, docstore.FindOptions{})
	require.NoError(t, err)
	require.Len(t, raws, 1)
	var got models.ActivityLog
	require.NoError(t, bson.Unmarshal(raws[0], &got))
	assert.Equal(t, "a", got.EntityID)

	store.SetOffline(true)
	assert.NotPanics(t, func() { sink.Record(ctx, entry("b")) })
}

func TestAsyncActivitySinkDrainsOnClose(t *testing.T) {
	t.Parallel()
	next := &memorySink{}
	sink := NewAsyncActivitySink(next, 16)
	for _, id := range []string{"a", "b", "c"} {
		sink.Record(context.Background(), entry(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))

	got := next.all()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].EntityID)
	assert.Zero(t, sink.Dropped())

	sink.Record(context.Background(), entry("late"))
	assert.Equal(t, int64(1), sink.Dropped())
	require.NoError(t, sink.Close(ctx))
}

func TestAsyncActivitySinkAccountsForEveryEntryAcrossClose(t *testing.T) {
	t.Parallel()
	next := &memorySink{}
	sink := NewAsyncActivitySink(next, 1024)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < perWriter; i++ {
				sink.Record(context.Background(), entry("x"))
			}
		}()
	}

	close(start)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
	wg.Wait()

	assert.Equal(t, int64(writers*perWriter), int64(len(next.all()))+sink.Dropped())
}

func TestAsyncActivitySinkDropsWhenFull(t *testing.T) {
	t.Parallel()
	next := &blockingSink{started: make(chan struct{}), release: make(chan struct{})}
	sink := NewAsyncActivitySink(next, 1)
	ctx := context.Background()

	sink.Record(ctx, entry("a"))
	<-next.started
	sink.Record(ctx, entry("b"))

	done := make(chan struct{})
	go func() {
		sink.Record(ctx, entry("c"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	assert.Equal(t, int64(1), sink.Dropped())

	close(next.release)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(closeCtx))
	assert.Len(t, next.all(), 2)
}

func TestUploadName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	name := uploadName(now, "photo.JPG")
	assert.True(t, strings.HasPrefix(name, "1700000000123-"), name)
	assert.True(t, strings.HasSuffix(name, ".JPG"), name)
	assert.Len(t, name, len("1700000000123-")+8+len(".JPG"))

	long := uploadName(now, "archive.averyveryverylongext")
	assert.True(t, strings.HasSuffix(long, ".averyvery"), long)

	noExt := uploadName(now, "../../etc/passwd")
	assert.NotContains(t, noExt, "/")
	assert.Len(t, noExt, len("1700000000123-")+8)
}

func TestLocalFileStore(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalFileStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), Upload{OriginalName: "cv.pdf", Body: strings.NewReader("%PDF")})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/"), url)
	assert.True(t, strings.HasSuffix(url, ".pdf"), url)

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	return &s3.PutObjectOutput{}, f.err
}

func TestS3FileStore(t *testing.T) {
	t.Parallel()
	putter := &fakePutter{}
	store := newS3FileStore(putter, "bucket", "https://cdn.example.com/")

	url, err := store.Save(context.Background(), Upload{
		OriginalName: "logo.png", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("png")),
	})
	require.NoError(t, err)
	key := aws.ToString(putter.input.Key)
	assert.True(t, strings.HasPrefix(key, "uploads/"), key)
	assert.Equal(t, "https://cdn.example.com/"+key, url)
	assert.Equal(t, "bucket", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, "png", string(putter.body))

	putter.err = errors.New("access denied")
	_, err = store.Save(context.Background(), Upload{OriginalName: "x.png", Body: strings.NewReader("x")})
	assert.Error(t, err)
}

func TestS3FileStoreRequiresBucket(t *testing.T) {
	t.Parallel()
	_, err := NewS3FileStore(context.Background(), "us-east-1", "", "")
	require.Error(t, err)
	assert.True(t, errs.IsConfigError(err))
	assert.Contains(t, err.Error(), "S3_BUCKET")
}

type fakeParameters struct {
	value *string
	err   error
	name  string
}

func (f *fakeParameters) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(params.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: f.value}}, nil
}

func TestResolveAdminToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	token, err := ResolveAdminToken(ctx, nil, "", "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	params := &fakeParameters{value: aws.String(" secret \n")}
	token, err = ResolveAdminToken(ctx, params, "/portfolio/admin-token", "from-env")
	require.NoError(t, err)
	assert.Equal(t, "secret", token)
	assert.Equal(t, "/portfolio/admin-token", params.name)

	_, err = ResolveAdminToken(ctx, &fakeParameters{value: aws.String("  ")}, "/p", "x")
	assert.Error(t, err)
	_, err = ResolveAdminToken(ctx, &fakeParameters{err: errors.New("boom")}, "/p", "x")
	assert.Error(t, err)
	_, err = ResolveAdminToken(ctx, nil, "/p", "x")
	assert.Error(t, err)
}

func TestContactNotifierSendsThroughResend(t *testing.T) {
	t.Parallel()
	var got ResendEmailRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	client := NewResendClient("re_key", "Site <site@example.com>")
	client.endpoint = srv.URL
	notifier := NewContactNotifier(client, "owner@example.com")

	err := notifier.Notify(context.Background(), models.ContactInput{
		Name: "Ada <script>", Email: "ada@example.com", Message: "hi\nthere",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer re_key", auth)
	assert.Equal(t, []string{"owner@example.com"}, got.To)
	assert.Equal(t, "ada@example.com", got.ReplyTo)
	assert.Contains(t, got.Html, "Ada &lt;script&gt;")
	assert.Contains(t, got.Html, "hi<br>there")
}

func TestResendClientErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	client := NewResendClient("re_key", "bad")
	client.endpoint = srv.URL
	err := client.SendEmail(context.Background(), "s", "b", "", []string{"a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from")

	assert.Error(t, client.SendEmail(context.Background(), "s", "b", "", nil))
	assert.Error(t, NewResendClient("", "x").SendEmail(context.Background(), "s", "b", "", []string{"a@example.com"}))
}

type recordingNotifier struct {
	sent chan models.ContactInput
}

func (n *recordingNotifier) Notify(ctx context.Context, in models.ContactInput) error {
	n.sent <- in
	return nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestContactServiceSubmit(t *testing.T) {
	t.Parallel()
	clock := newClock()
	limiter := NewMemoryRateLimiter(3, time.Minute, 100)
	limiter.now = clock.Now
	sink := &memorySink{}
	notifier := &recordingNotifier{sent: make(chan models.ContactInput, 4)}
	svc := NewContactService(limiter, sink, notifier)
	ctx := context.Background()
	form := models.ContactInput{Name: "Ada", Email: "ada@example.com", Message: "Hello"}

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Submit(ctx, "1.2.3.4", form))
	}
	err := svc.Submit(ctx, "1.2.3.4", form)
	require.Error(t, err)
	assert.True(t, errs.IsRateLimitError(err))
	var rl *errs.RateLimitErr
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Minute, rl.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, errs.StatusCode(err))

	entries := sink.all()
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionContact, entries[0].Action)
	assert.Equal(t, "message", entries[0].Entity)
	assert.Equal(t, "-", entries[0].EntityID)
	assert.Equal(t, "ada@example.com", entries[0].UserEmail)
	assert.Equal(t, "Hello", entries[0].Metadata["message"])

	select {
	case sent := <-notifier.sent:
		assert.Equal(t, "Ada", sent.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not sent")
	}

	invalid := models.ContactInput{Name: "Ada", Email: "nope", Message: "x"}
	assert.True(t, errs.IsValidation(svc.Submit(ctx, "9.9.9.9", invalid)))

	clock.Advance(time.Minute)
	assert.NoError(t, svc.Submit(ctx, "1.2.3.4", form))
}

func TestContactServiceFailsOpen(t *testing.T) {
	t.Parallel()
	sink := &memorySink{}
	svc := NewContactService(failingLimiter{}, sink, nil)
	err := svc.Submit(context.Background(), "k", models.ContactInput{Name: "A", Email: "a@example.com", Message: "m"})
	require.NoError(t, err)
	assert.Len(t, sink.all(), 1)
}
