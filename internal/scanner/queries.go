package scanner

import "erdgen/internal/symbols"

// Capture names used by the queries below. Every pattern captures the
// declaration under its kind and the identifier as @name.
var captureKinds = map[string]symbols.Kind{
	"module":    symbols.KindModule,
	"class":     symbols.KindClass,
	"interface": symbols.KindInterface,
	"method":    symbols.KindMethod,
	"property":  symbols.KindProperty,
	"constant":  symbols.KindConstant,
	"variable":  symbols.KindVariable,
}

var Queries = map[string]string{
	"ruby": `
		(module name: [(constant) (scope_resolution)] @name) @module
		(class name: [(constant) (scope_resolution)] @name) @class
		(method name: (_) @name) @method
		(singleton_method name: (_) @name) @method
		(assignment left: (constant) @name) @constant
		(call
			method: (identifier) @macro
			arguments: (argument_list (simple_symbol) @name)) @property
	`,
	"go": `
		(type_spec name: (type_identifier) @name type: (struct_type)) @class
		(type_spec name: (type_identifier) @name type: (interface_type)) @interface
		(field_declaration name: (field_identifier) @name) @property
		(method_elem name: (field_identifier) @name) @method
		(function_declaration name: (identifier) @name) @method
		(method_declaration name: (field_identifier) @name) @method
		(const_spec name: (identifier) @name) @constant
		(var_spec name: (identifier) @name) @variable
	`,
	"python": `
		(class_definition name: (identifier) @name) @class
		(function_definition name: (identifier) @name) @method
		(expression_statement (assignment left: (identifier) @name)) @variable
	`,
	"javascript": `
		(class_declaration name: (identifier) @name) @class
		(method_definition name: (property_identifier) @name) @method
		(field_definition property: (property_identifier) @name) @property
		(function_declaration name: (identifier) @name) @method
	`,
	"typescript": `
		(internal_module name: (_) @name) @module
		(class_declaration name: (type_identifier) @name) @class
		(abstract_class_declaration name: (type_identifier) @name) @class
		(interface_declaration name: (type_identifier) @name) @interface
		(method_definition name: (property_identifier) @name) @method
		(method_signature name: (property_identifier) @name) @method
		(abstract_method_signature name: (property_identifier) @name) @method
		(public_field_definition name: (property_identifier) @name) @property
		(property_signature name: (property_identifier) @name) @property
		(function_declaration name: (identifier) @name) @method
	`,
}

// rubyAttributeMacros turn their symbol arguments into properties. Other
// calls matched by the @property pattern are ignored.
var rubyAttributeMacros = map[string]bool{
	"attr_accessor": true,
	"attr_reader":   true,
	"attr_writer":   true,
}

// constructorNames are method names promoted to constructors, per language.
var constructorNames = map[string]string{
	"ruby":       "initialize",
	"python":     "__init__",
	"javascript": "constructor",
	"typescript": "constructor",
}
