package sender

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agendazap/dispatcher/pkg/evolution"
	"github.com/agendazap/dispatcher/pkg/file"
	"github.com/agendazap/dispatcher/pkg/logger"
	"github.com/agendazap/dispatcher/pkg/queue"
	"github.com/agendazap/dispatcher/pkg/transcode"
	"github.com/agendazap/dispatcher/svc/dispatch"
)

// Messenger is the transport used to deliver messages.
type Messenger interface {
	SendText(ctx context.Context, inst evolution.Instance, number, text string) (evolution.Result, error)
	SendButtonText(ctx context.Context, inst evolution.Instance, number, text, label, link string) (evolution.Result, error)
	SendMedia(ctx context.Context, inst evolution.Instance, msg evolution.MediaMessage) (evolution.Result, error)
}

// MediaStore resolves media records.
type MediaStore interface {
	// GetMedia returns dispatch.ErrMediaNotFound for unknown ids.
	GetMedia(ctx context.Context, id int64) (dispatch.Media, error)
}

// Transcoder converts audio into voice notes.
type Transcoder interface {
	ToVoice(ctx context.Context, data []byte, name string) ([]byte, error)
}

// Outcome is the observed result of one send.
type Outcome string

const (
	Delivered            Outcome = "delivered"
	TransportError       Outcome = "transport_error"
	ContentError         Outcome = "content_error"
	ConfigurationMissing Outcome = "configuration_missing"
)

// Retryable reports whether the queue should try the operation again.
func (o Outcome) Retryable() bool {
	return o == TransportError
}

// Sender executes SendOperations taken from the task queue.
type Sender struct {
	client     Messenger
	creds      dispatch.CredentialResolver
	media      MediaStore
	blobs      file.Storage
	transcoder Transcoder
	log        *slog.Logger
}

// Option configures a Sender.
type Option func(*Sender)

// WithTranscoder enables audio conversion to voice notes.
func WithTranscoder(t Transcoder) Option {
	return func(s *Sender) {
		s.transcoder = t
	}
}

// WithLogger sets the delivery logger. Nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a sender.
func New(client Messenger, creds dispatch.CredentialResolver, media MediaStore, blobs file.Storage, opts ...Option) (*Sender, error) {
	switch {
	case client == nil:
		return nil, ErrClientNil
	case creds == nil:
		return nil, ErrCredentialsNil
	case media == nil:
		return nil, ErrMediaStoreNil
	case blobs == nil:
		return nil, ErrBlobStoreNil
	}

	s := &Sender{
		client: client,
		creds:  creds,
		media:  media,
		blobs:  blobs,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("sender"))
	return s, nil
}

// Handler binds Handle to the task name the scheduler enqueues under.
func (s *Sender) Handler() queue.Handler {
	return queue.NewTaskHandler(s.Handle)
}

// Handle is the queue entry point. Transport errors are returned for retry;
// content and configuration errors are marked permanent so the task goes
// straight to the dead letter queue.
func (s *Sender) Handle(ctx context.Context, op dispatch.SendOperation) error {
	ctx = logger.WithCorrelationID(ctx, op.CorrelationID)
	log := s.log.With(
		logger.Recipient(op.Recipient),
		logger.Owner(op.OwnerID),
		slog.String("kind", string(op.Kind)),
	)

	started := time.Now()
	outcome, err := s.Send(ctx, op)
	switch outcome {
	case Delivered:
		log.InfoContext(ctx, "message delivered", logger.Duration(time.Since(started)))
		return nil
	case TransportError:
		log.WarnContext(ctx, "message delivery failed", logger.Error(err))
		return err
	default:
		log.ErrorContext(ctx, "message dropped", slog.String("outcome", string(outcome)), logger.Error(err))
		return queue.Permanent(err)
	}
}

// Send delivers one operation and classifies the result.
func (s *Sender) Send(ctx context.Context, op dispatch.SendOperation) (Outcome, error) {
	creds, err := s.creds.ResolveCredentials(ctx, op.OwnerID)
	if errors.Is(err, dispatch.ErrConfigurationMissing) {
		return ConfigurationMissing, err
	}
	if err != nil {
		return TransportError, fmt.Errorf("%w: resolve credentials: %w", ErrTransport, err)
	}
	inst := evolution.Instance{Host: creds.Host, APIKey: creds.APIKey, Name: creds.Instance}

	switch op.Kind {
	case dispatch.OpText:
		if op.Body == "" {
			return ContentError, fmt.Errorf("%w: empty text body", ErrContent)
		}
		_, err = s.client.SendText(ctx, inst, op.Recipient, op.Body)
	case dispatch.OpButton:
		if op.Button == nil || op.Button.Label == "" || op.Button.URL == "" {
			return ContentError, fmt.Errorf("%w: malformed button payload", ErrContent)
		}
		_, err = s.client.SendButtonText(ctx, inst, op.Recipient, op.Body, op.Button.Label, op.Button.URL)
	case dispatch.OpMedia:
		var msg evolution.MediaMessage
		if outcome, err := s.prepareMedia(ctx, op, &msg); err != nil {
			return outcome, err
		}
		_, err = s.client.SendMedia(ctx, inst, msg)
	default:
		return ContentError, fmt.Errorf("%w: %w: %q", ErrContent, dispatch.ErrUnknownOperation, op.Kind)
	}

	return classify(err)
}

func classify(err error) (Outcome, error) {
	switch {
	case err == nil:
		return Delivered, nil
	case errors.Is(err, evolution.ErrInvalidInstance):
		return ConfigurationMissing, fmt.Errorf("%w: %w", dispatch.ErrConfigurationMissing, err)
	case errors.Is(err, evolution.ErrInvalidMessage):
		return ContentError, fmt.Errorf("%w: %w", ErrContent, err)
	default:
		return TransportError, fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// prepareMedia loads the blob, converts audio to a voice note and fills msg.
func (s *Sender) prepareMedia(ctx context.Context, op dispatch.SendOperation, msg *evolution.MediaMessage) (Outcome, error) {
	if op.MediaID == nil {
		return ContentError, fmt.Errorf("%w: %w", ErrContent, dispatch.ErrMediaMissing)
	}

	media, err := s.media.GetMedia(ctx, *op.MediaID)
	if errors.Is(err, dispatch.ErrMediaNotFound) {
		return ContentError, fmt.Errorf("%w: media %d: %w", ErrContent, *op.MediaID, err)
	}
	if err != nil {
		return TransportError, fmt.Errorf("%w: load media %d: %w", ErrTransport, *op.MediaID, err)
	}
	if !media.Kind.Valid() {
		return ContentError, fmt.Errorf("%w: unsupported media kind %q", ErrContent, media.Kind)
	}

	blob, err := s.blobs.Fetch(ctx, media.Key)
	if err != nil {
		if errors.Is(err, file.ErrFileNotFound) || errors.Is(err, file.ErrInvalidPath) ||
			errors.Is(err, file.ErrIsDirectory) || errors.Is(err, file.ErrFileTooLarge) {
			return ContentError, fmt.Errorf("%w: media %d: %w", ErrContent, media.ID, err)
		}
		return TransportError, fmt.Errorf("%w: fetch media %d: %w", ErrTransport, media.ID, err)
	}

	data := blob.Data
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = blob.ContentType
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if media.Kind == dispatch.MediaAudio && s.transcoder != nil {
		voice, err := s.transcoder.ToVoice(ctx, data, media.Name)
		if err != nil {
			s.log.ErrorContext(ctx, "transcode failed, sending original audio",
				logger.Recipient(op.Recipient),
				slog.Int64("media_id", media.ID),
				logger.Error(errors.Join(ErrTranscode, err)),
			)
		} else {
			data, mimeType = voice, transcode.VoiceMimeType
		}
	}

	filename := media.Name
	if filename == "" {
		filename = blob.Filename
	}

	*msg = evolution.MediaMessage{
		Number:    op.Recipient,
		MediaType: string(media.Kind),
		MimeType:  mimeType,
		Caption:   op.Body,
		Media:     base64.StdEncoding.EncodeToString(data),
		FileName:  filename,
	}
	return Delivered, nil
}
