package bot

import (
	"context"
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v3"

	"bombily/pkg/logger"
	"bombily/pkg/models"
	"bombily/pkg/phone"
	"bombily/service"
)

// Russian plates: one letter, three digits, two letters, two or three digits
// of region.
var licensePlateRegex = regexp.MustCompile(`^[АВЕКМНОРСТУХ][0-9]{3}[АВЕКМНОРСТУХ]{2}[0-9]{2,3}$`)

// normalizeLicensePlate maps latin look-alikes to cyrillic and drops spaces.
func normalizeLicensePlate(input string) string {
	mapping := map[rune]rune{
		'A': 'А', 'B': 'В', 'E': 'Е', 'K': 'К', 'M': 'М', 'H': 'Н', 'O': 'О', 'P': 'Р', 'C': 'С', 'T': 'Т', 'Y': 'У', 'X': 'Х',
	}
	var builder strings.Builder
	for _, r := range strings.ToUpper(input) {
		if r == ' ' || r == '-' {
			continue
		}
		if cyr, ok := mapping[r]; ok {
			builder.WriteRune(cyr)
		} else {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// registrationSteps is the order the driver profile is asked in. Each step
// stores its answer under its state name.
var registrationSteps = []struct {
	state  string
	prompt string
}{
	{StateCarModel, "reg_model"},
	{StateCarColor, "reg_color"},
	{StateCarPlate, "reg_plate"},
	{StateSBPName, "reg_sbp_name"},
	{StateSBPPhone, "reg_sbp_phone"},
	{StateSBPBank, "reg_sbp_bank"},
}

func (b *Bot) handleDriverRegistrationStart(c tele.Context) error {
	sess, err := b.session(c)
	if err != nil {
		return c.Send(userError(err))
	}
	sess.Reset()
	sess.SetState(registrationSteps[0].state)
	return c.Send(msg(registrationSteps[0].prompt), tele.ModeHTML)
}

func (b *Bot) handleRegistrationText(c tele.Context, sess *service.Session) error {
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}
	state := sess.State()

	switch state {
	case StateCarPlate:
		text = normalizeLicensePlate(text)
		if !licensePlateRegex.MatchString(text) {
			return c.Send(msg("reg_bad_plate"), tele.ModeHTML)
		}
	case StateSBPPhone:
		formatted := phone.E164(text)
		if len(formatted) < 8 {
			return c.Send(userError(service.ErrInvalidPhone))
		}
		text = formatted
	}
	sess.Put(state, text)

	for i, step := range registrationSteps {
		if step.state != state {
			continue
		}
		if i+1 < len(registrationSteps) {
			next := registrationSteps[i+1]
			sess.SetState(next.state)
			return c.Send(msg(next.prompt), tele.ModeHTML)
		}
	}
	return b.saveDriverProfile(c, sess)
}

func (b *Bot) saveDriverProfile(c tele.Context, sess *service.Session) error {
	value := func(key string) *string {
		v := sess.Value(key)
		return &v
	}
	profile := models.DriverProfile{
		VehicleModel:     value(StateCarModel),
		VehicleColor:     value(StateCarColor),
		VehiclePlate:     value(StateCarPlate),
		SBPRecipientName: value(StateSBPName),
		SBPPhone:         value(StateSBPPhone),
		SBPBank:          value(StateSBPBank),
	}
	user := sess.Current()
	sess.Reset()

	if err := b.Svc.Directory().SetDriverProfile(context.Background(), user.ID, profile); err != nil {
		b.Log.Error("failed to save driver profile", logger.String("user_id", user.ID), logger.Error(err))
		return c.Send(userError(err))
	}
	if _, err := b.refresh(c); err != nil {
		return c.Send(userError(err))
	}
	return c.Send(msg("reg_done"))
}
