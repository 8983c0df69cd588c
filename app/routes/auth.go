package routes

import (
	"strings"

	"github.com/vango-go/vango"
	. "github.com/vango-go/vango/el"

	"helper_chat/internal/backend"
	"helper_chat/internal/locale"
)

type authScreenState struct {
	Bundle       locale.Bundle
	Mode         string
	Email        string
	Password     string
	UniversityID string
	Universities []backend.UniversityRow
	ErrorText    string
	NoticeText   string

	SetMode       func(mode string)
	SetEmail      func(value string)
	SetPassword   func(value string)
	SetUniversity func(value string)
	Submit        func()
	ToggleLocale  func()
}

func authScreen(state authScreenState) *vango.VNode {
	bundle := state.Bundle
	signup := state.Mode == "signup"

	title := bundle.T("auth.loginTitle")
	submitLabel := bundle.T("auth.loginButton")
	switchPrompt := bundle.T("auth.noAccount")
	switchLabel := bundle.T("auth.signupLink")
	switchMode := "signup"
	if signup {
		title = bundle.T("auth.signupTitle")
		submitLabel = bundle.T("auth.signupButton")
		switchPrompt = bundle.T("auth.hasAccount")
		switchLabel = bundle.T("auth.loginLink")
		switchMode = "signin"
	}

	var universityField *vango.VNode
	if signup {
		universityField = Div(Class("space-y-1"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("auth.university"))),
			Select(
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Value(state.UniversityID),
				OnInput(state.SetUniversity),
				Option(Value(""), Text(bundle.T("auth.selectPlaceholder"))),
				RangeKeyed(state.Universities,
					func(row backend.UniversityRow) any { return row.ID },
					func(row backend.UniversityRow) *vango.VNode {
						return Option(Value(row.ID), Text(row.Name))
					},
				),
			),
		)
	}

	var errorNode *vango.VNode
	if state.ErrorText != "" {
		errorNode = Div(Class("text-sm text-red-300"), Text(state.ErrorText))
	}
	var noticeNode *vango.VNode
	if state.NoticeText != "" {
		noticeNode = Div(Class("text-sm text-emerald-300"), Text(state.NoticeText))
	}

	return Div(Class("h-screen flex items-center justify-center bg-[#0b1320] text-white"),
		Div(Class("w-full max-w-sm rounded-lg border border-white/10 bg-[#0f1a2b] p-6 space-y-4"),
			Div(Class("flex items-center justify-between"),
				Div(Class("text-lg font-semibold"), Text(title)),
				Button(
					Class("rounded-md px-2 py-1 text-xs border border-white/30 hover:bg-white/10"),
					OnClick(state.ToggleLocale),
					Text(strings.ToUpper(bundle.Next().Key)),
				),
			),
			Div(Class("space-y-1"),
				Div(Class("text-xs text-white/70"), Text(bundle.T("auth.email"))),
				Input(
					Type("email"),
					Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
					Value(state.Email),
					OnInput(state.SetEmail),
				),
			),
			Div(Class("space-y-1"),
				Div(Class("text-xs text-white/70"), Text(bundle.T("auth.password"))),
				Input(
					Type("password"),
					Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
					Value(state.Password),
					OnInput(state.SetPassword),
				),
			),
			universityField,
			errorNode,
			noticeNode,
			Button(
				Class("w-full rounded-md px-3 py-2 text-sm font-semibold bg-[#2457d6] hover:bg-[#2e63e0]"),
				OnClick(state.Submit),
				Text(submitLabel),
			),
			Div(Class("text-xs text-white/60 flex items-center gap-1"),
				Text(switchPrompt),
				Button(
					Class("underline text-white/80 hover:text-white"),
					OnClick(func() { state.SetMode(switchMode) }),
					Text(switchLabel),
				),
			),
		),
	)
}
