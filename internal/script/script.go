// Package script is the support-line dialog: greeting, payment, internet
// and TV troubleshooting units plus the shared more-questions hub and the
// goodbye family. It is both the reference script of the runtime and the
// fixture its routing semantics are tested against.
package script

import (
	"context"
	"fmt"
	"log/slog"

	"callscript/internal/call"
	"callscript/internal/detect"
	"callscript/internal/dialog"
	"callscript/internal/nlu"
	"callscript/internal/platform"
	"callscript/internal/voice"
)

// bargeInCharCount interrupts the prompt once the caller has said this many
// characters.
const bargeInCharCount = 500

// Listen timing defaults shared by every unit, in milliseconds.
var listenDefaults = map[string]int{
	voice.KeyNoInputTimeout:        6000,
	voice.KeyRecognitionTimeout:    60000,
	voice.KeySpeechCompleteTimeout: 2500,
	voice.KeyASRCompleteTimeout:    6000,
}

// Script wires the support-line units onto one call.
type Script struct {
	call   *call.Call
	nn     *platform.Service
	nv     *voice.Service
	engine *dialog.Engine
	logger *slog.Logger
}

func New(c *call.Call, nn *platform.Service, nv *voice.Service, logger *slog.Logger) *Script {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Script{
		call:   c,
		nn:     nn,
		nv:     nv,
		engine: dialog.NewEngine(c, nn, logger),
		logger: logger,
	}
	c.Defaults().SetSection(call.SectionListen, listenDefaults)
	s.register()
	return s
}

// Engine exposes the router, mainly for the server and tests.
func (s *Script) Engine() *dialog.Engine { return s.engine }

// Run walks the dialog from the given unit, hello_main by default.
func (s *Script) Run(ctx context.Context, entry string) error {
	if entry == "" {
		entry = "hello_main"
	}
	return s.engine.Run(ctx, entry)
}

// route is one ordered first-match-wins entity check of a unit's logic.
type route struct {
	entity string
	value  string
	next   string
}

func (s *Script) register() {
	// hello unit
	helloEntities := []string{"payment_problem", "internet_problem", "tv_problem", "repeat", "robot", "operator"}
	s.engine.Register("hello_main", s.entry("hello_unit", "hello_main_prompt", helloEntities, s.helloLogic))
	s.engine.Register("hello_default", s.entry("hello_unit", "hello_default_prompt", helloEntities, s.helloLogic))
	s.engine.Register("hello_null", s.nullEntry("hello_unit", "hello_null_prompt", helloEntities, s.helloLogic))
	s.engine.Register("hello_repeat", s.entry("hello_unit", "hello_repeat_prompt", helloEntities, s.helloLogic))
	s.engine.Register("hello_robot", s.entry("hello_unit", "hello_robot_prompt", helloEntities, s.helloLogic))

	// payment unit
	paymentEntities := []string{"pay_site", "offices", "repeat", "promise_pay", "operator", "confirm"}
	s.engine.Register("payment_main", s.entry("payment_unit", "payment_main_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_default", s.entry("payment_unit", "payment_default_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_null", s.nullEntry("payment_unit", "payment_null_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_repeat", s.entry("payment_unit", "payment_repeat_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_site", s.entry("payment_unit", "payment_site_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_offices", s.entry("payment_unit", "payment_offices_prompt", paymentEntities, s.paymentLogic))
	s.engine.Register("payment_promise_pay", s.entry("payment_unit", "payment_promise_pay_prompt", paymentEntities, s.paymentLogic))

	// tv unit
	tvEntities := []string{"repeat", "robot", "confirm", "operator"}
	s.engine.Register("tv_main", s.entry("tv_unit", "tv_main_prompt", tvEntities, s.tvLogic))
	s.engine.Register("tv_default", s.entry("tv_unit", "tv_default_prompt", tvEntities, s.tvLogic))
	s.engine.Register("tv_null", s.nullEntry("tv_unit", "tv_null_prompt", tvEntities, s.tvLogic))
	s.engine.Register("tv_repeat", s.entry("tv_unit", "tv_repeat_prompt", tvEntities, s.tvLogic))
	s.engine.Register("tv_robot", s.entry("tv_unit", "tv_robot_prompt", tvEntities, s.tvLogic))

	// internet unit
	internetEntities := []string{"robot", "repeat", "operator", "confirm"}
	s.engine.Register("internet_main", s.entry("internet_unit", "internet_main_prompt", internetEntities, s.internetLogic))
	s.engine.Register("internet_default", s.entry("internet_unit", "internet_default_prompt", internetEntities, s.internetLogic))
	s.engine.Register("internet_null", s.nullEntry("internet_unit", "internet_null_prompt", internetEntities, s.internetLogic))
	s.engine.Register("internet_repeat", s.entry("internet_unit", "internet_repeat_prompt", internetEntities, s.internetLogic))
	s.engine.Register("internet_robot", s.entry("internet_unit", "internet_robot_prompt", internetEntities, s.internetLogic))

	// internet_green unit
	internetGreenEntities := []string{"confirm", "operator", "repeat", "robot"}
	s.engine.Register("internet_green_main", s.entry("internet_green_unit", "internet_green_main_prompt", internetGreenEntities, s.internetGreenLogic))
	s.engine.Register("internet_green_default", s.entry("internet_green_unit", "internet_green_default_prompt", internetGreenEntities, s.internetGreenLogic))
	s.engine.Register("internet_green_null", s.nullEntry("internet_green_unit", "internet_green_null_prompt", internetGreenEntities, s.internetGreenLogic))
	s.engine.Register("internet_green_repeat", s.entry("internet_green_unit", "internet_green_repeat_prompt", internetGreenEntities, s.internetGreenLogic))
	s.engine.Register("internet_green_robot", s.entry("internet_green_unit", "internet_green_robot_prompt", internetGreenEntities, s.internetGreenLogic))

	// more_question hub
	moreQuestionEntities := []string{"payment_problem", "internet_problem", "tv_problem", "robot", "no_question", "operator", "confirm"}
	s.engine.Register("more_question_main", s.entry("more_question_unit", "more_question_main_prompt", moreQuestionEntities, s.moreQuestionLogic))
	s.engine.Register("more_question_default", s.entry("more_question_unit", "more_question_default_prompt", moreQuestionEntities, s.moreQuestionLogic))
	s.engine.Register("more_question_null", s.nullEntry("more_question_unit", "more_question_null_prompt", moreQuestionEntities, s.moreQuestionLogic))
	s.engine.Register("more_question_robot", s.entry("more_question_unit", "more_question_robot_prompt", moreQuestionEntities, s.moreQuestionLogic))
	s.engine.Register("more_question_confirm", s.entry("more_question_unit", "more_question_confirm_prompt", moreQuestionEntities, s.moreQuestionLogic))

	// goodbye family
	s.engine.Register("goodbye_main", s.goodbye("goodbye_main_prompt"))
	s.engine.Register("goodbye_null", s.goodbye("goodbye_null_prompt"))
	s.engine.Register("goodbye_operator", s.goodbye("goodbye_operator_prompt"))
	s.engine.Register("goodbye_operator_demand", s.goodbye("goodbye_operator_demand_prompt"))
	s.engine.Register("goodbye_internet_green", s.goodbye("goodbye_internet_green_prompt"))
}

// entry builds a standard unit entry: log the unit, play the prompt with
// barge-in armed, listen, and hand the frozen result to the unit's logic.
func (s *Script) entry(logUnit, prompt string, entities []string, logic func(context.Context, *nlu.Result) (string, error)) dialog.Handler {
	return func(ctx context.Context) (string, error) {
		_ = s.nn.Log(ctx, "unit", logUnit)
		session, err := s.nv.Listen(ctx, voice.ListenOptions{
			Policy:   detect.ByCharCount(bargeInCharCount),
			Entities: nlu.Filter{Include: entities},
		})
		if err != nil {
			return "", err
		}
		if err := s.nv.Say(ctx, prompt); err != nil {
			s.nv.EndListen(ctx, session)
			return "", err
		}
		result := s.nv.EndListen(ctx, session)
		return logic(ctx, result)
	}
}

// nullEntry is an entry that escapes to goodbye_null after repeated silent
// rounds on the same unit.
func (s *Script) nullEntry(logUnit, prompt string, entities []string, logic func(context.Context, *nlu.Result) (string, error)) dialog.Handler {
	inner := s.entry(logUnit, prompt, entities, logic)
	counter := logUnit + "_null"
	return func(ctx context.Context) (string, error) {
		if s.call.Counters().Inc(counter) > 1 {
			return "goodbye_null", nil
		}
		return inner(ctx)
	}
}

// goodbye plays a farewell prompt and ends the call.
func (s *Script) goodbye(prompt string) dialog.Handler {
	return func(ctx context.Context) (string, error) {
		_ = s.nn.Log(ctx, "unit", "goodbye_main")
		if err := s.nv.Say(ctx, prompt); err != nil {
			return "", err
		}
		return "", s.nv.Hangup(ctx)
	}
}

// unitLogic is the shared transition discipline: the exec-count ceiling,
// then NULL, then DEFAULT, then the unit's ordered entity checks, then
// DEFAULT again as the fallback. Check order is significant: the first
// matching entity wins even when several are present.
func (s *Script) unitLogic(ctx context.Context, unit string, r *nlu.Result, nullNext, defaultNext string, routes []route) (string, error) {
	_ = s.nn.Log(ctx, "unit", unit)
	if !s.engine.EnterLogic(ctx, unit) {
		return "", nil
	}
	if r == nil || r.Empty() {
		_ = s.nn.Log(ctx, "condition", "NULL")
		return nullNext, nil
	}
	if !r.HasEntities() {
		_ = s.nn.Log(ctx, "condition", "DEFAULT")
		return defaultNext, nil
	}
	for _, rt := range routes {
		if v, ok := r.Entity(rt.entity); ok && v == rt.value {
			_ = s.nn.Log(ctx, "condition", fmt.Sprintf("%s=%s", rt.entity, conditionValue(rt.value)))
			return rt.next, nil
		}
	}
	return defaultNext, nil
}

func conditionValue(v string) string {
	switch v {
	case "true":
		return "True"
	case "false":
		return "False"
	default:
		return v
	}
}

func (s *Script) helloLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "hello_unit", r, "hello_null", "hello_default", []route{
		{"repeat", "true", "hello_repeat"},
		{"payment_problem", "true", "payment_main"},
		{"internet_problem", "true", "internet_main"},
		{"tv_problem", "true", "tv_main"},
		{"robot", "true", "hello_robot"},
		{"operator", "true", "goodbye_operator_demand"},
	})
}

func (s *Script) paymentLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "payment_unit", r, "payment_null", "payment_default", []route{
		{"repeat", "true", "payment_repeat"},
		{"operator", "true", "goodbye_operator_demand"},
		{"pay_site", "true", "payment_site"},
		{"offices", "true", "payment_offices"},
		{"promise_pay", "true", "payment_promise_pay"},
		{"confirm", "true", "more_question_main"},
		{"confirm", "false", "goodbye_main"},
	})
}

func (s *Script) tvLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "tv_unit", r, "tv_null", "tv_default", []route{
		{"repeat", "true", "tv_repeat"},
		{"robot", "true", "tv_robot"},
		{"operator", "true", "goodbye_operator_demand"},
		{"confirm", "true", "more_question_main"},
		{"confirm", "false", "goodbye_main"},
	})
}

func (s *Script) internetLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "internet_unit", r, "internet_null", "internet_default", []route{
		{"repeat", "true", "internet_repeat"},
		{"robot", "true", "internet_robot"},
		{"operator", "true", "goodbye_operator_demand"},
		{"confirm", "true", "goodbye_operator"},
		{"confirm", "false", "internet_green_main"},
	})
}

func (s *Script) internetGreenLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "internet_green_unit", r, "internet_green_null", "internet_green_default", []route{
		{"repeat", "true", "internet_green_repeat"},
		{"robot", "true", "internet_green_robot"},
		{"operator", "true", "goodbye_operator_demand"},
		{"confirm", "true", "more_question_main"},
		{"confirm", "false", "goodbye_internet_green"},
	})
}

func (s *Script) moreQuestionLogic(ctx context.Context, r *nlu.Result) (string, error) {
	return s.unitLogic(ctx, "more_question_unit", r, "more_question_null", "more_question_default", []route{
		{"payment_problem", "true", "payment_main"},
		{"internet_problem", "true", "internet_main"},
		{"tv_problem", "true", "tv_main"},
		{"robot", "true", "more_question_robot"},
		{"no_question", "true", "goodbye_main"},
		{"operator", "true", "goodbye_operator_demand"},
		{"confirm", "true", "more_question_confirm"},
	})
}
