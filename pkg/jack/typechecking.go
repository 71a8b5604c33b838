package jack

import "fmt"

// ----------------------------------------------------------------------------
// Jack TypeChecker

// The TypeChecker walks a 'jack.Program' the same way the 'Lowerer' does (class,
// then subroutine, then statement by statement) but instead of emitting VM
// operations it infers the DataType of every expression and validates it
// against where it's used: assignment targets, conditions and return values.
type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one

	currentReturn DataType // The Return type declared for the subroutine being checked
}

func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program}
}

func (tc *TypeChecker) Check() (bool, error) {
	if tc.program == nil {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		_, err := tc.HandleClass(class)
		if err != nil {
			return false, fmt.Errorf("error type checking class '%s': %w", name, err)
		}

	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		_, err := tc.HandleVarStmt(VarStmt{Vars: []Variable{field}})
		if err != nil {
			return false, fmt.Errorf("error handling field '%s' in class '%s': %w", field.Name, class.Name, err)
		}
	}

	for _, subroutine := range class.Subroutines.Entries() {
		_, err := tc.HandleSubroutine(subroutine)
		if err != nil {
			return false, fmt.Errorf("error handling subroutine '%s' in class '%s': %w", subroutine.Name, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	prevReturn := tc.currentReturn
	tc.currentReturn = subroutine.Return
	defer func() { tc.currentReturn = prevReturn }()

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "__obj", VarType: Parameter, DataType: DataType{Main: Object}})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments.Entries() {
		// Like this we're actually supporting shadowing of variables, so if a variable
		// with the same name is already present in the current scope, we just temporarily
		// override it with the most update one instead of returning an error (like Go does
		tc.scopes.RegisterVariable(arg)
	}

	for _, stmt := range subroutine.Statements {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling nested statement %T': %w", stmt, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.VarStmt', registering each new variable in scope.
func (tc *TypeChecker) HandleVarStmt(statement VarStmt) (bool, error) {
	for _, variable := range statement.Vars {
		tc.scopes.RegisterVariable(variable)
	}
	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch tStmt := stmt.(type) {
	case DoStmt:
		_, err := tc.Infer(tStmt.FuncCall)
		return err == nil, err
	case VarStmt:
		return tc.HandleVarStmt(tStmt)
	case LetStmt:
		return tc.HandleLetStmt(tStmt)
	case IfStmt:
		return tc.HandleIfStmt(tStmt)
	case WhileStmt:
		return tc.HandleWhileStmt(tStmt)
	case ReturnStmt:
		return tc.HandleReturnStmt(tStmt)
	default:
		return false, fmt.Errorf("unrecognized statement: %T", stmt)
	}
}

// Specialized function to type-check a 'jack.LetStmt', matching the LHS variable's
// declared type against the RHS expression's inferred type.
func (tc *TypeChecker) HandleLetStmt(statement LetStmt) (bool, error) {
	rhsType, err := tc.Infer(statement.Rhs)
	if err != nil {
		return false, fmt.Errorf("error inferring RHS expression type: %w", err)
	}

	var lhsType DataType
	switch lhs := statement.Lhs.(type) {
	case VarExpr:
		_, variable, err := tc.scopes.ResolveVariable(lhs.Var)
		if err != nil {
			return false, fmt.Errorf("error resolving LHS variable '%s': %w", lhs.Var, err)
		}
		lhsType = variable.DataType
	case ArrayExpr:
		if _, err := tc.Infer(lhs.Index); err != nil {
			return false, fmt.Errorf("error inferring array index expression: %w", err)
		}
		// Array cells are untyped words in Jack, any assignable RHS is accepted.
		return true, nil
	default:
		return false, fmt.Errorf("LHS expression must be either a 'VarExpr' or an 'ArrayExpr', got: %T", statement.Lhs)
	}

	if !assignable(lhsType, rhsType) {
		return false, fmt.Errorf("cannot assign value of type '%s' to variable of type '%s'", rhsType.Main, lhsType.Main)
	}
	return true, nil
}

// Specialized function to type-check a 'jack.IfStmt', requiring a boolean condition.
func (tc *TypeChecker) HandleIfStmt(statement IfStmt) (bool, error) {
	if err := tc.requireBool(statement.Condition); err != nil {
		return false, err
	}
	for _, stmt := range statement.ThenBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in 'then' block: %w", err)
		}
	}
	for _, stmt := range statement.ElseBlock {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in 'else' block: %w", err)
		}
	}
	return true, nil
}

// Specialized function to type-check a 'jack.WhileStmt', requiring a boolean condition.
func (tc *TypeChecker) HandleWhileStmt(statement WhileStmt) (bool, error) {
	if err := tc.requireBool(statement.Condition); err != nil {
		return false, err
	}
	for _, stmt := range statement.Block {
		if _, err := tc.HandleStatement(stmt); err != nil {
			return false, fmt.Errorf("error handling statement in while block: %w", err)
		}
	}
	return true, nil
}

// Specialized function to type-check a 'jack.ReturnStmt' against the enclosing subroutine's Return type.
func (tc *TypeChecker) HandleReturnStmt(statement ReturnStmt) (bool, error) {
	if statement.Expr == nil {
		if tc.currentReturn.Main != Void {
			return false, fmt.Errorf("missing return value for subroutine declared to return '%s'", tc.currentReturn.Main)
		}
		return true, nil
	}

	exprType, err := tc.Infer(statement.Expr)
	if err != nil {
		return false, fmt.Errorf("error inferring return expression type: %w", err)
	}
	if !assignable(tc.currentReturn, exprType) {
		return false, fmt.Errorf("cannot return value of type '%s' from subroutine declared to return '%s'", exprType.Main, tc.currentReturn.Main)
	}
	return true, nil
}

func (tc *TypeChecker) requireBool(expr Expression) error {
	dataType, err := tc.Infer(expr)
	if err != nil {
		return fmt.Errorf("error inferring condition expression type: %w", err)
	}
	if dataType.Main != Bool {
		return fmt.Errorf("condition must be of type 'bool', got '%s'", dataType.Main)
	}
	return nil
}

// Infer returns the DataType produced by evaluating the given expression.
func (tc *TypeChecker) Infer(expr Expression) (DataType, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		if tExpr.Var == "this" {
			return DataType{Main: Object}, nil
		}
		_, variable, err := tc.scopes.ResolveVariable(tExpr.Var)
		if err != nil {
			return DataType{}, fmt.Errorf("error resolving variable '%s': %w", tExpr.Var, err)
		}
		return variable.DataType, nil

	case LiteralExpr:
		return tExpr.Type, nil

	case ArrayExpr:
		if _, err := tc.Infer(tExpr.Index); err != nil {
			return DataType{}, fmt.Errorf("error inferring array index expression: %w", err)
		}
		_, variable, err := tc.scopes.ResolveVariable(tExpr.Var)
		if err != nil {
			return DataType{}, fmt.Errorf("error resolving array variable '%s': %w", tExpr.Var, err)
		}
		if variable.DataType.Main != Object && variable.DataType.Main != Null {
			return DataType{}, fmt.Errorf("variable '%s' is not indexable, got type '%s'", tExpr.Var, variable.DataType.Main)
		}
		// Array cells are untyped words, accessing one yields an 'int' by convention.
		return DataType{Main: Int}, nil

	case UnaryExpr:
		rhsType, err := tc.Infer(tExpr.Rhs)
		if err != nil {
			return DataType{}, fmt.Errorf("error inferring nested expression: %w", err)
		}
		switch tExpr.Type {
		case Negation:
			if rhsType.Main != Int && rhsType.Main != Char {
				return DataType{}, fmt.Errorf("arithmetic negation requires an 'int'/'char' operand, got '%s'", rhsType.Main)
			}
			return DataType{Main: Int}, nil
		case BoolNot:
			if rhsType.Main != Bool {
				return DataType{}, fmt.Errorf("boolean negation requires a 'bool' operand, got '%s'", rhsType.Main)
			}
			return DataType{Main: Bool}, nil
		default:
			return DataType{}, fmt.Errorf("unrecognized unary expression type: %s", tExpr.Type)
		}

	case BinaryExpr:
		lhsType, err := tc.Infer(tExpr.Lhs)
		if err != nil {
			return DataType{}, fmt.Errorf("error inferring nested LHS expression: %w", err)
		}
		rhsType, err := tc.Infer(tExpr.Rhs)
		if err != nil {
			return DataType{}, fmt.Errorf("error inferring nested RHS expression: %w", err)
		}

		switch tExpr.Type {
		case Plus, Minus, Divide, Multiply:
			if !isNumeric(lhsType) || !isNumeric(rhsType) {
				return DataType{}, fmt.Errorf("arithmetic operator requires 'int'/'char' operands, got '%s' and '%s'", lhsType.Main, rhsType.Main)
			}
			return DataType{Main: Int}, nil
		case BoolOr, BoolAnd:
			if lhsType.Main != Bool || rhsType.Main != Bool {
				return DataType{}, fmt.Errorf("boolean operator requires 'bool' operands, got '%s' and '%s'", lhsType.Main, rhsType.Main)
			}
			return DataType{Main: Bool}, nil
		case Equal, LessThan, GreatThan:
			return DataType{Main: Bool}, nil
		default:
			return DataType{}, fmt.Errorf("unrecognized binary expression type: %s", tExpr.Type)
		}

	case FuncCallExpr:
		return tc.inferFuncCall(tExpr)

	default:
		return DataType{}, fmt.Errorf("unrecognized expression: %T", expr)
	}
}

// inferFuncCall resolves the callee's declared Return type, looking up user classes
// first and falling back to the standard library ABI (see stdlib.go).
func (tc *TypeChecker) inferFuncCall(expression FuncCallExpr) (DataType, error) {
	for _, expr := range expression.Arguments {
		if _, err := tc.Infer(expr); err != nil {
			return DataType{}, fmt.Errorf("error inferring argument expression: %w", err)
		}
	}

	className := expression.Var
	if !expression.IsExtCall {
		className = tc.scopes.GetScope()
		if idx := indexOf(className, '.'); idx >= 0 {
			className = className[:idx]
		}
	} else if _, variable, err := tc.scopes.ResolveVariable(expression.Var); err == nil && variable != (Variable{}) {
		className = variable.DataType.Subtype
	}

	if class, ok := tc.program[className]; ok {
		if routine, ok := class.Subroutines.Get(expression.FuncName); ok {
			return routine.Return, nil
		}
	}
	if class, ok := StandardLibraryABI[className]; ok {
		if routine, ok := class.Subroutines.Get(expression.FuncName); ok {
			return routine.Return, nil
		}
	}

	return DataType{}, fmt.Errorf("subroutine '%s.%s' not found", className, expression.FuncName)
}

func indexOf(s string, ch byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ch {
			return i
		}
	}
	return -1
}

func isNumeric(t DataType) bool { return t.Main == Int || t.Main == Char }

// assignable reports whether a value of type 'from' can be stored into a variable
// of type 'to'. Jack treats 'char' as an unsigned 16-bit word like 'int', and
// 'null' is assignable to any object-typed variable.
func assignable(to, from DataType) bool {
	if to.Main == from.Main && to.Subtype == from.Subtype {
		return true
	}
	if isNumeric(to) && isNumeric(from) {
		return true
	}
	if to.Main == Object && from.Main == Null {
		return true
	}
	return false
}
