package handlers

import "booking-bot/internal/roles"

// Keyboard builders
func MainMenuKeyboard(caps roles.Capabilities) [][]Button {
	rows := [][]Button{
		{{Text: "Book a service", Data: "book"}},
		{{Text: "My appointments", Data: "my_appts"}},
	}
	if caps.CanAdmin {
		rows = append(rows, []Button{{Text: "Manage services", Data: "adm_services"}, {Text: "Add service", Data: "adm_add_svc"}})
		rows = append(rows, []Button{{Text: "All appointments", Data: "adm_appts"}, {Text: "Statistics", Data: "adm_stats"}})
	}
	if caps.CanOwn {
		rows = append(rows, []Button{{Text: "Admins", Data: "own_admins"}, {Text: "Add admin", Data: "own_add_admin"}})
		rows = append(rows, []Button{{Text: "Full report", Data: "own_stats"}})
	}
	return rows
}

func AdminKeyboard() [][]Button {
	return [][]Button{
		{{Text: "Services", Data: "adm_services"}, {Text: "Add service", Data: "adm_add_svc"}},
		{{Text: "Appointments", Data: "adm_appts"}, {Text: "Statistics", Data: "adm_stats"}},
		{{Text: "Back", Data: "menu"}},
	}
}

func OwnerKeyboard() [][]Button {
	return [][]Button{
		{{Text: "Admins", Data: "own_admins"}, {Text: "Add admin", Data: "own_add_admin"}},
		{{Text: "Full report", Data: "own_stats"}},
		{{Text: "Back", Data: "menu"}},
	}
}

func BackKeyboard() [][]Button {
	return [][]Button{{{Text: "Back", Data: "menu"}}}
}

func CancelKeyboard() [][]Button {
	return [][]Button{{{Text: "Cancel", Data: "cancel"}}}
}

func ConfirmKeyboard() [][]Button {
	return [][]Button{{{Text: "Confirm", Data: "confirm"}, {Text: "Cancel", Data: "cancel"}}}
}

func RoleSelectionKeyboard() [][]Button {
	return [][]Button{
		{{Text: "Admin", Data: "role:admin"}, {Text: "Client", Data: "role:client"}},
		{{Text: "Cancel", Data: "cancel"}},
	}
}
