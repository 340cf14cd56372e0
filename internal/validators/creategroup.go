package validators

import "fmt"

var createGroupTypes = map[string]bool{"genome": true, "feature": true}

// createGroupParamsValidator validates the in-process CreateGroup step
// (spec §4.12): required job_result_paths, group_type, group_name.
type createGroupParamsValidator struct{}

func (createGroupParamsValidator) ValidateParams(params map[string]interface{}) Result {
	var errs []string
	out := params

	if paths, ok := out["job_result_paths"].([]interface{}); !ok || len(paths) == 0 {
		errs = append(errs, "CreateGroup: job_result_paths is required and must be non-empty")
	}

	groupType, _ := out["group_type"].(string)
	if groupType == "" {
		errs = append(errs, "CreateGroup: group_type is required")
	} else if !createGroupTypes[groupType] {
		errs = append(errs, fmt.Sprintf("CreateGroup: group_type %q is not one of genome, feature", groupType))
	}

	if name, ok := out["group_name"].(string); !ok || name == "" {
		errs = append(errs, "CreateGroup: group_name is required")
	}

	return Result{Params: out, Errors: errs}
}

func init() {
	Default.RegisterValidator(&BaseValidator{AppID: "CreateGroup", Params: createGroupParamsValidator{}})
}
