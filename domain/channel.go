package domain

// Channel is declared by configuration; the core never creates one.
// Message keys are scoped by "{channel}:", so an ID never contains ':'.
type Channel struct {
	ID          ChannelID `yaml:"id" validate:"required,excludes=:"`
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
}
