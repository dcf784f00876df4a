package i18n

var english = map[string]string{
	"auth.invalid_credentials": "These credentials do not match our records.",
	"auth.account_inactive":    "Your account is inactive.",
	"auth.tenant_inactive":     "This school is inactive.",
	"auth.no_tenant":           "No school is assigned to your account.",
	"auth.cross_tenant":        "You do not have access to this school.",
	"auth.tenant_not_found":    "School not found.",
	"auth.select_tenant":       "You must select a school.",
	"auth.unauthenticated":     "Unauthenticated.",
	"auth.invalid_token":       "The access token is invalid or expired.",
	"auth.forbidden":           "This action is unauthorized.",
	"auth.csrf_mismatch":       "CSRF token mismatch.",
	"auth.session_expired":     "Your session has expired.",
	"session.self_revoke":      "You cannot revoke the session you are using. Log out instead.",
	"session.not_found":        "Session not found.",
	"token.self_revoke":        "You cannot revoke the token you are using. Log out instead.",
	"token.not_found":          "Token not found.",
	"session.logged_out":       "Logged out.",
	"session.revoked":          "Session revoked.",
	"token.revoked":            "Token revoked.",
	"password.changed":         "Password changed.",
	"tenancy.reassignment":     "Records cannot be moved to another school.",
	"tenancy.cross_tenant":     "Records cannot be created for another school.",
	"resource.not_found":       "Resource not found.",
	"validation.failed":        "The given data was invalid.",
	"validation.required":      "This field is required.",
	"validation.email":         "This field must be a valid email address.",
	"password.current_invalid": "The current password is incorrect.",
	"password.same":            "The new password must be different from the current one.",
	"password.confirmation":    "The password confirmation does not match.",
	"password.min":             "The password must be at least 8 characters.",
	"throttle.login":           "Too many login attempts. Please try again later.",
	"request.invalid":          "The request body is invalid.",
	"internal":                 "Internal server error.",
}

var spanish = map[string]string{
	"auth.invalid_credentials": "Estas credenciales no coinciden con nuestros registros.",
	"auth.account_inactive":    "Tu cuenta está inactiva.",
	"auth.tenant_inactive":     "Este colegio está inactivo.",
	"auth.no_tenant":           "Tu cuenta no tiene un colegio asignado.",
	"auth.cross_tenant":        "No tienes acceso a este colegio.",
	"auth.tenant_not_found":    "Colegio no encontrado.",
	"auth.select_tenant":       "Debes seleccionar un colegio.",
	"auth.unauthenticated":     "No autenticado.",
	"auth.invalid_token":       "El token de acceso no es válido o ha expirado.",
	"auth.forbidden":           "No estás autorizado para realizar esta acción.",
	"auth.csrf_mismatch":       "El token CSRF no coincide.",
	"auth.session_expired":     "Tu sesión ha expirado.",
	"session.self_revoke":      "No puedes revocar la sesión que estás usando. Cierra sesión.",
	"session.not_found":        "Sesión no encontrada.",
	"token.self_revoke":        "No puedes revocar el token que estás usando. Cierra sesión.",
	"token.not_found":          "Token no encontrado.",
	"session.logged_out":       "Sesión cerrada.",
	"session.revoked":          "Sesión revocada.",
	"token.revoked":            "Token revocado.",
	"password.changed":         "Contraseña actualizada.",
	"tenancy.reassignment":     "Los registros no se pueden mover a otro colegio.",
	"tenancy.cross_tenant":     "No se pueden crear registros para otro colegio.",
	"resource.not_found":       "Recurso no encontrado.",
	"validation.failed":        "Los datos proporcionados no son válidos.",
	"validation.required":      "Este campo es obligatorio.",
	"validation.email":         "Este campo debe ser un correo electrónico válido.",
	"password.current_invalid": "La contraseña actual es incorrecta.",
	"password.same":            "La nueva contraseña debe ser distinta de la actual.",
	"password.confirmation":    "La confirmación de la contraseña no coincide.",
	"password.min":             "La contraseña debe tener al menos 8 caracteres.",
	"throttle.login":           "Demasiados intentos de inicio de sesión. Inténtalo más tarde.",
	"request.invalid":          "El cuerpo de la solicitud no es válido.",
	"internal":                 "Error interno del servidor.",
}
