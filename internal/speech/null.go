package speech

// NullRecognizer is an unsupported recognizer for headless use.
type NullRecognizer struct{}

func (NullRecognizer) Supported() bool { return false }
func (NullRecognizer) Start(string) error { return ErrUnsupported }
func (NullRecognizer) Stop() error { return nil }
func (NullRecognizer) Subscribe(RecognitionListener) (unsubscribe func()) { return func() {} }

// NullSynthesizer is an unsupported synthesizer for headless use.
type NullSynthesizer struct{}

func (NullSynthesizer) Supported() bool { return false }
func (NullSynthesizer) Speak(Utterance) error { return ErrUnsupported }
func (NullSynthesizer) Cancel() {}
func (NullSynthesizer) Voices() []Voice { return nil }
func (NullSynthesizer) Subscribe(SynthesisListener) (unsubscribe func()) { return func() {} }
