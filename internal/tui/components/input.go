package components

import (
	"fmt"
	"strings"
)

// Input is a single-line text field.
type Input struct {
	label       string
	value       []rune
	placeholder string
	width       int
	focused     bool
	cursor      int
	maxLength   int
	required    bool
	validate    func(string) error
	err         string
	styles      Styles
}

// NewInput creates an empty field.
func NewInput(label string, styles Styles) *Input {
	return &Input{label: label, width: 20, maxLength: 64, styles: styles}
}

// SetValue replaces the value and moves the cursor to its end.
func (i *Input) SetValue(v string) *Input {
	i.value = []rune(v)
	i.cursor = len(i.value)
	return i
}

// SetPlaceholder sets the hint shown while the field is empty.
func (i *Input) SetPlaceholder(p string) *Input {
	i.placeholder = p
	return i
}

// SetWidth sets the rendered value width.
func (i *Input) SetWidth(w int) *Input {
	i.width = w
	return i
}

// SetMaxLength caps the value length.
func (i *Input) SetMaxLength(m int) *Input {
	i.maxLength = m
	return i
}

// SetRequired marks the field as required.
func (i *Input) SetRequired(r bool) *Input {
	i.required = r
	return i
}

// SetValidator installs a check run by Validate after the required check.
func (i *Input) SetValidator(fn func(string) error) *Input {
	i.validate = fn
	return i
}

// Focus sets the focus state.
func (i *Input) Focus(focused bool) {
	i.focused = focused
}

// IsFocused returns the focus state.
func (i *Input) IsFocused() bool {
	return i.focused
}

// Label returns the field label.
func (i *Input) Label() string {
	return i.label
}

// Value returns the trimmed value.
func (i *Input) Value() string {
	return strings.TrimSpace(string(i.value))
}

// Err returns the last validation message.
func (i *Input) Err() string {
	return i.err
}

// HandleKey edits the value. Only focused fields accept input.
func (i *Input) HandleKey(key string) {
	if !i.focused {
		return
	}

	switch key {
	case "backspace":
		if i.cursor > 0 {
			i.value = append(i.value[:i.cursor-1], i.value[i.cursor:]...)
			i.cursor--
		}
	case "delete":
		if i.cursor < len(i.value) {
			i.value = append(i.value[:i.cursor], i.value[i.cursor+1:]...)
		}
	case "left":
		if i.cursor > 0 {
			i.cursor--
		}
	case "right":
		if i.cursor < len(i.value) {
			i.cursor++
		}
	case "home", "ctrl+a":
		i.cursor = 0
	case "end", "ctrl+e":
		i.cursor = len(i.value)
	default:
		r := []rune(key)
		if len(r) == 1 && len(i.value) < i.maxLength {
			i.value = append(i.value[:i.cursor], append(r, i.value[i.cursor:]...)...)
			i.cursor++
		}
	}
}

// Validate runs the required check and the validator, recording the first
// failure.
func (i *Input) Validate() bool {
	i.err = ""
	v := i.Value()
	if v == "" {
		if i.required {
			i.err = "Required"
			return false
		}
		return true
	}
	if i.validate != nil {
		if err := i.validate(v); err != nil {
			i.err = err.Error()
			return false
		}
	}
	return true
}

// Render draws the label, value and any validation message.
func (i *Input) Render() string {
	label := i.label
	if i.required {
		label += "*"
	}
	label = i.styles.Label.Width(18).Render(label + ":")

	var display string
	n := len(i.value)
	switch {
	case n == 0 && i.placeholder != "" && !i.focused:
		display = i.styles.Muted.Render(i.placeholder)
		n = len([]rune(i.placeholder))
	case i.focused:
		display = i.styles.Focus.Render(string(i.value[:i.cursor]) + "_" + string(i.value[i.cursor:]))
		n++
	default:
		display = i.styles.Value.Render(string(i.value))
	}
	if n < i.width {
		display += strings.Repeat(" ", i.width-n)
	}

	out := label + " " + display
	if i.err != "" {
		out += " " + i.styles.Error.Render(i.err)
	}
	return out
}

// Form is a vertical list of fields with tab navigation.
type Form struct {
	title     string
	fields    []*Input
	focus     int
	submitted bool
	cancelled bool
	err       string
	styles    Styles
}

// NewForm creates an empty form.
func NewForm(title string, styles Styles) *Form {
	return &Form{title: title, styles: styles}
}

// AddField appends a field. The first field receives focus.
func (f *Form) AddField(field *Input) *Form {
	f.fields = append(f.fields, field)
	if len(f.fields) == 1 {
		field.Focus(true)
	}
	return f
}

// Field returns the field with the given label, or nil.
func (f *Form) Field(label string) *Input {
	for _, in := range f.fields {
		if in.label == label {
			return in
		}
	}
	return nil
}

// Values returns the trimmed values keyed by label.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.fields))
	for _, in := range f.fields {
		out[in.label] = in.Value()
	}
	return out
}

// HandleKey navigates between fields or forwards the key to the focused
// one. Enter on the last field submits when every field validates.
func (f *Form) HandleKey(key string) {
	switch key {
	case "tab", "down":
		f.move(1)
	case "shift+tab", "up":
		f.move(-1)
	case "ctrl+s":
		f.submit()
	case "esc":
		f.cancelled = true
	case "enter":
		if f.focus == len(f.fields)-1 {
			f.submit()
		} else {
			f.move(1)
		}
	default:
		if f.focus < len(f.fields) {
			f.fields[f.focus].HandleKey(key)
		}
	}
}

func (f *Form) submit() {
	ok := true
	for _, in := range f.fields {
		if !in.Validate() {
			ok = false
		}
	}
	f.submitted = ok
}

func (f *Form) move(delta int) {
	if len(f.fields) == 0 {
		return
	}
	f.fields[f.focus].Focus(false)
	f.focus = (f.focus + delta + len(f.fields)) % len(f.fields)
	f.fields[f.focus].Focus(true)
}

// IsSubmitted reports whether the form was submitted with valid fields.
func (f *Form) IsSubmitted() bool {
	return f.submitted
}

// IsCancelled reports whether the form was dismissed.
func (f *Form) IsCancelled() bool {
	return f.cancelled
}

// SetError shows a submission error and reopens the form for edits.
func (f *Form) SetError(err string) {
	f.err = err
	f.submitted = false
}

// Render draws the form.
func (f *Form) Render() string {
	var b strings.Builder

	b.WriteString(f.styles.Title.Render(fmt.Sprintf("=== %s ===", f.title)))
	b.WriteString("\n\n")

	for _, in := range f.fields {
		b.WriteString(in.Render())
		b.WriteString("\n")
	}

	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(f.styles.Error.Render("Error: " + f.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(f.styles.Help.Render("Tab:Next  Shift+Tab:Prev  Enter/Ctrl+S:Submit  Esc:Cancel"))
	return b.String()
}
