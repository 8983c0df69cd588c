package routes

import (
	"github.com/vango-go/vango"
	. "github.com/vango-go/vango/el"

	"helper_chat/internal/backend"
	"helper_chat/internal/locale"
)

type profileDrawerState struct {
	Bundle         locale.Bundle
	Tab            string
	Profile        backend.ProfileRow
	UniversityName string
	ErrorText      string

	FirstName     string
	LastName      string
	Bio           string
	Hobby         string
	EventTitle    string
	EventStart    string
	EventEnd      string
	EventLocation string

	SetTab        func(tab string)
	SetFirstName  func(value string)
	SetLastName   func(value string)
	SetBio        func(value string)
	SetHobby      func(value string)
	SetEventTitle func(value string)
	SetEventStart func(value string)
	SetEventEnd   func(value string)
	SetEventLoc   func(value string)
	Close         func()

	SaveName    func()
	SaveBio     func()
	AddHobby    func()
	RemoveHobby func(hobby string)
	SetStyle    func(style string)
	ToggleEmail func()
	TogglePush  func()
	AddEvent    func()
	RemoveEvent func(eventID string)
}

func profileDrawer(state profileDrawerState) *vango.VNode {
	bundle := state.Bundle

	var body *vango.VNode
	switch state.Tab {
	case "schedule":
		body = scheduleTab(state)
	case "prefs":
		body = prefsTab(state)
	default:
		body = aboutTab(state)
	}

	var errorNode *vango.VNode
	if state.ErrorText != "" {
		errorNode = Div(Class("text-sm text-red-300"), Text(state.ErrorText))
	}

	return Aside(Class("w-96 flex flex-col border-l border-white/10 bg-[#0f1a2b]"),
		Div(Class("h-16 px-4 flex items-center justify-between border-b border-white/10"),
			Div(Class("text-sm font-semibold"), Text(bundle.T("profile.title"))),
			Button(
				Class("rounded-md px-2 py-1 text-xs border border-white/30 hover:bg-white/10"),
				OnClick(state.Close),
				Text(bundle.T("profile.close")),
			),
		),
		Div(Class("px-4 pt-3 flex gap-2 text-xs"),
			drawerTabButton(bundle.T("profile.tabProfile"), "about", state.Tab, state.SetTab),
			drawerTabButton(bundle.T("profile.tabSchedule"), "schedule", state.Tab, state.SetTab),
			drawerTabButton(bundle.T("profile.tabPrefs"), "prefs", state.Tab, state.SetTab),
		),
		Div(Class("flex-1 overflow-y-auto p-4 space-y-4"),
			errorNode,
			body,
		),
	)
}

func drawerTabButton(label, tab, current string, setTab func(string)) *vango.VNode {
	class := "rounded-md px-3 py-1.5 border border-white/20 text-white/70 hover:bg-white/10"
	if tab == current {
		class = "rounded-md px-3 py-1.5 border border-[#3f5f90] bg-[#29416a]"
	}
	return Button(Class(class), OnClick(func() { setTab(tab) }), Text(label))
}

func aboutTab(state profileDrawerState) *vango.VNode {
	bundle := state.Bundle

	var universityNode *vango.VNode
	if state.UniversityName != "" {
		universityNode = Div(Class("text-xs text-white/60"),
			Text(bundle.T("auth.university")+": "+state.UniversityName),
		)
	}

	return Div(Class("space-y-4"),
		universityNode,
		Div(Class("space-y-1"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("profile.firstName"))),
			Input(
				Type("text"),
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Value(state.FirstName),
				OnInput(state.SetFirstName),
			),
		),
		Div(Class("space-y-1"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("profile.lastName"))),
			Input(
				Type("text"),
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Value(state.LastName),
				OnInput(state.SetLastName),
			),
		),
		Button(
			Class("rounded-md px-3 py-1.5 text-sm bg-[#2457d6] hover:bg-[#2e63e0]"),
			OnClick(state.SaveName),
			Text(bundle.T("profile.save")),
		),
		Div(Class("space-y-1"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("profile.bio"))),
			Textarea(
				Class("w-full min-h-20 rounded-md px-3 py-2 text-sm resize-y bg-[#15243a] border border-white/20"),
				Value(state.Bio),
				OnInput(state.SetBio),
			),
		),
		Button(
			Class("rounded-md px-3 py-1.5 text-sm bg-[#2457d6] hover:bg-[#2e63e0]"),
			OnClick(state.SaveBio),
			Text(bundle.T("profile.save")),
		),
		Div(Class("space-y-2"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("profile.hobbies"))),
			Div(Class("flex flex-wrap gap-2"),
				RangeKeyed(state.Profile.Hobbies,
					func(hobby string) any { return hobby },
					func(hobby string) *vango.VNode {
						return Div(Class("flex items-center gap-1 rounded-full bg-[#15243a] border border-white/20 px-3 py-1 text-xs"),
							Text(hobby),
							Button(
								Class("text-white/50 hover:text-red-300"),
								OnClick(func() { state.RemoveHobby(hobby) }),
								Text("✕"),
							),
						)
					},
				),
			),
			Div(Class("flex gap-2"),
				Input(
					Type("text"),
					Class("flex-1 rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
					Value(state.Hobby),
					OnInput(state.SetHobby),
				),
				Button(
					Class("rounded-md px-3 py-1.5 text-sm border border-white/30 hover:bg-white/10"),
					OnClick(state.AddHobby),
					Text(bundle.T("profile.addHobby")),
				),
			),
		),
	)
}

func prefsTab(state profileDrawerState) *vango.VNode {
	bundle := state.Bundle
	prefs := state.Profile.Preferences

	return Div(Class("space-y-4"),
		Div(Class("space-y-1"),
			Div(Class("text-xs text-white/70"), Text(bundle.T("profile.style"))),
			Select(
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Value(prefs.Style),
				OnInput(state.SetStyle),
				RangeKeyed(assistantStyles,
					func(style string) any { return style },
					func(style string) *vango.VNode {
						return Option(Value(style), Text(style))
					},
				),
			),
		),
		notifyToggle(bundle.T("profile.notifyEmail"), prefs.Notifications.Email, state.ToggleEmail),
		notifyToggle(bundle.T("profile.notifyPush"), prefs.Notifications.Push, state.TogglePush),
	)
}

func notifyToggle(label string, enabled bool, toggle func()) *vango.VNode {
	buttonClass := "rounded-md px-3 py-1.5 text-xs border border-white/30 text-white/60 hover:bg-white/10"
	buttonLabel := "OFF"
	if enabled {
		buttonClass = "rounded-md px-3 py-1.5 text-xs border border-[#3f5f90] bg-[#29416a]"
		buttonLabel = "ON"
	}
	return Div(Class("flex items-center justify-between"),
		Div(Class("text-sm"), Text(label)),
		Button(Class(buttonClass), OnClick(toggle), Text(buttonLabel)),
	)
}

func scheduleTab(state profileDrawerState) *vango.VNode {
	bundle := state.Bundle

	var listNode *vango.VNode
	if len(state.Profile.Schedule) == 0 {
		listNode = Div(Class("text-sm text-white/60"), Text(bundle.T("schedule.empty")))
	} else {
		listNode = Div(Class("space-y-2"),
			RangeKeyed(state.Profile.Schedule,
				func(event backend.EventRow) any { return event.ID },
				func(event backend.EventRow) *vango.VNode {
					var locationNode *vango.VNode
					if event.Location != "" {
						locationNode = Div(Class("text-xs text-white/60"), Text(event.Location))
					}
					return Div(Class("rounded-md border border-white/10 bg-[#142235] p-3 space-y-1"),
						Div(Class("flex items-center justify-between gap-2"),
							Div(Class("text-sm font-medium truncate"), Text(event.Title)),
							Button(
								Class("text-xs text-white/50 hover:text-red-300"),
								OnClick(func() { state.RemoveEvent(event.ID) }),
								Text(bundle.T("schedule.remove")),
							),
						),
						Div(Class("text-xs text-white/60"), Text(event.Start+" - "+event.End)),
						locationNode,
					)
				},
			),
		)
	}

	return Div(Class("space-y-4"),
		listNode,
		Div(Class("rounded-md border border-white/10 p-3 space-y-2"),
			Div(Class("text-xs font-semibold text-white/70"), Text(bundle.T("schedule.addTitle"))),
			Input(
				Type("text"),
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Placeholder(bundle.T("schedule.title")),
				Value(state.EventTitle),
				OnInput(state.SetEventTitle),
			),
			Div(Class("flex gap-2"),
				Input(
					Type("datetime-local"),
					Class("flex-1 rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
					Placeholder(bundle.T("schedule.start")),
					Value(state.EventStart),
					OnInput(state.SetEventStart),
				),
				Input(
					Type("datetime-local"),
					Class("flex-1 rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
					Placeholder(bundle.T("schedule.end")),
					Value(state.EventEnd),
					OnInput(state.SetEventEnd),
				),
			),
			Input(
				Type("text"),
				Class("w-full rounded-md px-3 py-2 text-sm bg-[#15243a] border border-white/20"),
				Placeholder(bundle.T("schedule.location")),
				Value(state.EventLocation),
				OnInput(state.SetEventLoc),
			),
			Button(
				Class("rounded-md px-3 py-1.5 text-sm bg-[#2457d6] hover:bg-[#2e63e0]"),
				OnClick(state.AddEvent),
				Text(bundle.T("schedule.addTitle")),
			),
		),
	)
}
