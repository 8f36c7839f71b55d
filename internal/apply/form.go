// Package apply is the careers form client: it validates what the applicant entered,
// tracks the submission status and delivers the application through a Transport.
package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"careers-relay/internal/attachment"
	"careers-relay/internal/models"
	"careers-relay/internal/submission"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Banner messages.
const (
	MsgSubmitting    = "Submitting..."
	MsgSuccess       = "Thanks for applying! We’ll be in touch."
	MsgFailed        = "Something went wrong. Please try again."
	MsgMissingFields = "Please add your name and a valid email address."
)

var ErrValidation = errors.New("application is not valid")

// Form is one careers form instance. It is safe for concurrent use.
type Form struct {
	mu          sync.Mutex
	transport   Transport
	rules       attachment.Rules
	requireFile bool
	machine     *submission.Machine
	validate    *validator.Validate
	log         *zap.Logger
	onChange    func(submission.Status)

	fields      models.ApplicationFields
	file        *models.Attachment
	fileError   string
	fieldErrors map[string]string
	resumed     bool
}

type Option func(*Form)

// WithRules replaces the default upload policy.
func WithRules(rules attachment.Rules) Option {
	return func(f *Form) { f.rules = rules }
}

// WithRequiredFile makes a resume mandatory.
func WithRequiredFile(required bool) Option {
	return func(f *Form) { f.requireFile = required }
}

func WithLogger(log *zap.Logger) Option {
	return func(f *Form) { f.log = log }
}

// OnChange registers a listener for status changes. It runs while the form is
// locked and must not call back into the form.
func OnChange(fn func(submission.Status)) Option {
	return func(f *Form) { f.onChange = fn }
}

func New(transport Transport, opts ...Option) *Form {
	f := &Form{
		transport: transport,
		rules:     attachment.DefaultRules(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       zap.NewNop(),
		fields:    models.ApplicationFields{Position: models.DefaultRole},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.machine = submission.New(f.onChange)
	return f
}

// SetField updates one input. Editing clears the input's inline error and dismisses
// a settled banner.
func (f *Form) SetField(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch strings.ToLower(name) {
	case "name":
		f.fields.Name = value
	case "email":
		f.fields.Email = value
	case "phone":
		f.fields.Phone = value
	case "position":
		f.fields.Position = value
	case "experience":
		f.fields.Experience = value
	case "bot-field", "_gotcha", "honeypot":
		f.fields.Honeypot = value
		return nil
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	delete(f.fieldErrors, strings.ToLower(name))
	f.machine.Reset()
	return nil
}

func (f *Form) Fields() models.ApplicationFields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields
}

// FieldErrors returns the inline errors of the last blocked submit, keyed by input.
func (f *Form) FieldErrors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.fieldErrors))
	for k, v := range f.fieldErrors {
		out[k] = v
	}
	return out
}

// SelectFile validates and remembers the chosen file. nil clears the selection.
func (f *Form) SelectFile(file *models.Attachment) attachment.Result {
	if file == nil {
		f.ClearFile()
		return attachment.Result{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res := attachment.Validate(attachment.FileInfo{MimeType: file.MimeType, SizeBytes: file.SizeBytes}, f.rules)
	f.file = file
	f.fileError = res.Message
	return res
}

// ClearFile drops the selection, its inline error and the banner.
func (f *Form) ClearFile() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file = nil
	f.fileError = ""
	f.machine.Reset()
}

// FileError is the inline error of the selected file, empty when it is valid.
func (f *Form) FileError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileError
}

// FileLabel shows the file name and size for a selection, else the placeholder.
func (f *Form) FileLabel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return f.rules.Placeholder()
	}
	if f.file.SizeBytes <= 0 {
		return f.file.Filename
	}
	return f.file.Filename + " — " + attachment.FormatBytes(f.file.SizeBytes)
}

// Hint is shown under a valid selection.
func (f *Form) Hint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil || f.fileError != "" {
		return ""
	}
	return f.rules.Hint()
}

func (f *Form) Status() submission.Status {
	return f.machine.Status()
}

// SubmitEnabled is false while a submission is in flight or the file is invalid.
func (f *Form) SubmitEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.machine.CanSubmit() && f.fileError == ""
}

// Submit validates and delivers the application. A filled honeypot makes it a silent
// no-op. Transport failures leave a generic banner; the returned error keeps the cause.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.fields.Honeypot != "" {
		f.mu.Unlock()
		f.log.Info("honeypot filled, dropping submission")
		return nil
	}
	if !f.machine.CanSubmit() {
		f.mu.Unlock()
		return submission.ErrInFlight
	}
	if err := f.checkLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if err := f.machine.Begin(MsgSubmitting); err != nil {
		f.mu.Unlock()
		return err
	}
	fields := f.fields
	file := f.file
	f.mu.Unlock()

	err := f.transport.Submit(ctx, fields, file)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.log.Error("application submission failed", zap.Error(err))
		_ = f.machine.Fail(MsgFailed)
		return err
	}
	_ = f.machine.Succeed(MsgSuccess)
	f.fields = models.ApplicationFields{Position: models.DefaultRole}
	f.file = nil
	f.fileError = ""
	f.fieldErrors = nil
	return nil
}

func (f *Form) checkLocked() error {
	f.fieldErrors = nil
	if err := f.validate.Struct(f.fields); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		f.fieldErrors = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			f.fieldErrors[strings.ToLower(fe.Field())] = fieldMessage(fe)
		}
		_ = f.machine.Fail(MsgMissingFields)
		return ErrValidation
	}

	if f.file == nil {
		if f.requireFile {
			f.fileError = f.rules.Summary()
			_ = f.machine.Fail(f.rules.Summary())
			return ErrValidation
		}
		return nil
	}
	res := attachment.Validate(attachment.FileInfo{MimeType: f.file.MimeType, SizeBytes: f.file.SizeBytes}, f.rules)
	if !res.OK() {
		f.fileError = res.Message
		_ = f.machine.Fail(f.rules.Summary())
		return ErrValidation
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch {
	case fe.Field() == "Email" && fe.Tag() == "email":
		return "Please enter a valid email address."
	case fe.Field() == "Email":
		return "Please enter your email address."
	case fe.Field() == "Name":
		return "Please enter your name."
	default:
		return "This field is required."
	}
}

// ResumeFromRedirect consumes the success marker of the page the form host
// redirected to. Only the first call on a form can report success; the returned URL
// has the marker removed.
func (f *Form) ResumeFromRedirect(pageURL string) (string, bool, error) {
	signal, err := NewSuccessSignal(pageURL)
	if err != nil {
		return "", false, err
	}
	clean, ok := signal.Consume()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !ok || f.resumed {
		f.resumed = true
		return clean, false, nil
	}
	f.resumed = true
	if err := f.machine.Confirm(MsgSuccess); err != nil {
		return clean, false, err
	}
	return clean, true, nil
}
